package surface

import "testing"

func TestEncodeDecodeActionID_RoundTrip(t *testing.T) {
	cases := []struct{ wf, step, action string }{
		{"onboarding", "confirm-create", "yes"},
		{"payment", "choose-method", "opt-1"},
		{"backup", "pick-targets", ActionIDSubmit},
		{"wf-with-dashes", "step:weird", "a:b|c"},
	}
	for _, c := range cases {
		encoded := EncodeActionID(c.wf, c.step, c.action)
		wf, step, action, ok := DecodeActionID(encoded)
		if !ok {
			t.Fatalf("decode failed for %q", encoded)
		}
		if wf != c.wf || step != c.step || action != c.action {
			t.Fatalf("round-trip mismatch: got (%q,%q,%q), want (%q,%q,%q)", wf, step, action, c.wf, c.step, c.action)
		}
	}
}

func TestDecodeActionID_Malformed(t *testing.T) {
	for _, bad := range []string{"", "not-a-callback", "wf:onlywf", "wf:w|s:", "s:step|a:act"} {
		if _, _, _, ok := DecodeActionID(bad); ok {
			t.Fatalf("expected decode failure for %q", bad)
		}
	}
}

func TestTruncateCallbackData_WithinLimitUnchanged(t *testing.T) {
	encoded := EncodeActionID("wf", "step", "action")
	if got := TruncateCallbackData(encoded, len(encoded)+10); got != encoded {
		t.Fatalf("expected unchanged, got %q", got)
	}
}

func TestTruncateCallbackData_Deterministic(t *testing.T) {
	encoded := EncodeActionID("onboarding-workflow", "set-passphrase-confirmation", "this-is-a-very-long-option-identifier")
	a := TruncateCallbackData(encoded, 40)
	b := TruncateCallbackData(encoded, 40)
	if a != b {
		t.Fatalf("truncation not deterministic: %q vs %q", a, b)
	}
	if len(a) > 40 {
		t.Fatalf("truncated result still exceeds limit: %q (%d bytes)", a, len(a))
	}
}

func TestModalID_RoundTrip(t *testing.T) {
	encoded := EncodeModalID("onboarding", "collect-address")
	wf, step, ok := DecodeModalID(encoded)
	if !ok || wf != "onboarding" || step != "collect-address" {
		t.Fatalf("round-trip failed: wf=%q step=%q ok=%v", wf, step, ok)
	}
}

func TestIsMetaCommand(t *testing.T) {
	cases := map[string]ActionKind{
		"cancel": ActionCancel, "Cancel": ActionCancel, "/cancel": ActionCancel,
		"back": ActionBack, " BACK ": ActionBack, "/back": ActionBack,
	}
	for text, want := range cases {
		got, ok := IsMetaCommand(text)
		if !ok || got != want {
			t.Fatalf("IsMetaCommand(%q) = (%v,%v), want (%v,true)", text, got, ok, want)
		}
	}
	if _, ok := IsMetaCommand("hello"); ok {
		t.Fatal("expected no meta command for ordinary text")
	}
}
