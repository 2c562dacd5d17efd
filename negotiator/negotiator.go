// Package negotiator turns an abstract primitive.Primitive into a rendering
// strategy for a given surface's capabilities.
//
// negotiate is a pure function: identical (primitive, capabilities) inputs
// always produce an identical Result. It holds no state and performs no I/O,
// which is what lets every other component (engine, adapters, tests) treat
// it as a deterministic oracle rather than a collaborator to mock.
package negotiator

import (
	"fmt"
	"strings"

	"github.com/flowmesh/workflow/primitive"
)

// Strategy is the outcome of negotiating a primitive against a surface.
type Strategy string

const (
	// StrategyNative means the surface can render the primitive with its
	// own rich controls (inline buttons, modals, voice notes, ...).
	StrategyNative Strategy = "native"

	// StrategyTextFallback means the surface cannot render the primitive
	// natively but a plain-text equivalent was produced.
	StrategyTextFallback Strategy = "text-fallback"

	// StrategyNotifyBlocked means no text degrade exists; the user must be
	// told the interaction cannot proceed on this surface.
	StrategyNotifyBlocked Strategy = "notify-blocked"
)

// Result is the outcome of Negotiate.
type Result struct {
	Strategy Strategy

	// FallbackPrimitive is set when Strategy == StrategyTextFallback. It is
	// always a primitive.KindInfo primitive containing the rendered text
	// substitute (a numbered list, "Reply yes or no", etc).
	FallbackPrimitive *primitive.Primitive

	// BlockedReason is set when Strategy == StrategyNotifyBlocked and
	// explains, in user-facing language, why the primitive cannot be shown.
	BlockedReason string
}

// Negotiate maps p onto a Strategy given what caps reports the target
// surface can do. The per-Kind decision rules live in the negotiate*
// helpers below.
func Negotiate(p primitive.Primitive, caps primitive.SurfaceCapabilities) Result {
	switch p.Kind {
	case primitive.KindInfo, primitive.KindTextInput:
		return Result{Strategy: StrategyNative}

	case primitive.KindChoice:
		return negotiateChoice(p, caps)

	case primitive.KindMultiChoice:
		return negotiateMultiChoice(p, caps)

	case primitive.KindConfirm:
		return negotiateConfirm(p, caps)

	case primitive.KindMedia:
		return negotiateMedia(p, caps)

	default:
		return Result{
			Strategy:      StrategyNotifyBlocked,
			BlockedReason: fmt.Sprintf("unsupported interaction kind %q", p.Kind),
		}
	}
}

func negotiateChoice(p primitive.Primitive, caps primitive.SurfaceCapabilities) Result {
	meta := metaSlots(p)
	if caps.InlineButtons && len(p.Options)+meta <= caps.ButtonBudget() {
		return Result{Strategy: StrategyNative}
	}
	return Result{Strategy: StrategyTextFallback, FallbackPrimitive: textListFallback(p, "Reply with a number")}
}

func negotiateMultiChoice(p primitive.Primitive, caps primitive.SurfaceCapabilities) Result {
	if caps.MultiSelectButtons || caps.InlineButtons {
		return Result{Strategy: StrategyNative}
	}
	return Result{Strategy: StrategyTextFallback, FallbackPrimitive: textListFallback(p, "Reply with numbers separated by commas")}
}

func negotiateConfirm(p primitive.Primitive, caps primitive.SurfaceCapabilities) Result {
	if caps.InlineButtons {
		return Result{Strategy: StrategyNative}
	}
	var b strings.Builder
	b.WriteString(p.Content)
	b.WriteString("\n\nReply yes or no")
	appendHints(&b, p)
	return Result{Strategy: StrategyTextFallback, FallbackPrimitive: &primitive.Primitive{
		Kind:    primitive.KindInfo,
		Content: b.String(),
	}}
}

func negotiateMedia(p primitive.Primitive, caps primitive.SurfaceCapabilities) Result {
	if p.Media == nil {
		return Result{Strategy: StrategyNotifyBlocked, BlockedReason: "media primitive missing media spec"}
	}
	switch p.Media.Type {
	case primitive.MediaVoice:
		if caps.VoiceMessages {
			return Result{Strategy: StrategyNative}
		}
		return Result{
			Strategy:      StrategyNotifyBlocked,
			BlockedReason: "this surface cannot play voice messages; try again from a voice-capable surface",
		}
	case primitive.MediaImage, primitive.MediaFile:
		if caps.FileUpload {
			return Result{Strategy: StrategyNative}
		}
		if p.Media.URL == "" {
			return Result{Strategy: StrategyNotifyBlocked, BlockedReason: "this surface cannot display files and no link is available"}
		}
		content := p.Content
		if content != "" {
			content += "\n"
		}
		content += p.Media.URL
		return Result{Strategy: StrategyTextFallback, FallbackPrimitive: &primitive.Primitive{
			Kind:    primitive.KindInfo,
			Content: content,
		}}
	default:
		return Result{Strategy: StrategyNotifyBlocked, BlockedReason: fmt.Sprintf("unsupported media type %q", p.Media.Type)}
	}
}

// metaSlots counts the extra button slots a rendered choice primitive needs
// beyond its options (back/cancel controls), since those compete for the
// same ButtonBudget.
func metaSlots(p primitive.Primitive) int {
	n := 0
	if p.IncludeBack {
		n++
	}
	if p.IncludeCancel {
		n++
	}
	return n
}

func textListFallback(p primitive.Primitive, instruction string) *primitive.Primitive {
	var b strings.Builder
	b.WriteString(p.Content)
	b.WriteString("\n\n")
	for i, opt := range p.Options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt.Label)
	}
	b.WriteString(instruction)
	appendHints(&b, p)
	return &primitive.Primitive{Kind: primitive.KindInfo, Content: b.String()}
}

func appendHints(b *strings.Builder, p primitive.Primitive) {
	if p.IncludeCancel {
		b.WriteString(" (or \"cancel\" to stop)")
	}
	if p.IncludeBack {
		b.WriteString(" (or \"back\" to go back)")
	}
}
