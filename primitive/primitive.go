package primitive

// Kind enumerates the abstract interaction primitives a workflow step can
// ask a surface to render. The negotiator maps each Kind, together with a
// target surface's SurfaceCapabilities, onto a rendering strategy.
type Kind string

const (
	KindChoice      Kind = "choice"
	KindMultiChoice Kind = "multi-choice"
	KindConfirm     Kind = "confirm"
	KindTextInput   Kind = "text-input"
	KindInfo        Kind = "info"
	KindMedia       Kind = "media"
)

// MediaType distinguishes the media primitive's sub-kinds, each of which the
// negotiator treats differently (image/file degrade to a captioned link;
// voice has no text degrade path at all).
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaFile  MediaType = "file"
	MediaVoice MediaType = "voice"
)

// Option is one selectable item in a choice or multi-choice primitive.
type Option struct {
	ID          string
	Label       string
	Description string
	Style       string
}

// MediaSpec carries the payload of a media primitive. Exactly one of URL or
// Path is expected to be set; MimeType is informational for adapters that
// need it to pick a transport-native upload method.
type MediaSpec struct {
	Type     MediaType
	URL      string
	Path     string
	MimeType string
}

// Progress describes where the user is in a multi-step workflow, computed by
// the engine via breadth-first search over the step graph.
type Progress struct {
	Current int
	Total   int
}

// Primitive is the fully-resolved, surface-agnostic description of one
// message the engine wants rendered. Content is already interpolated by the
// time a Primitive reaches an adapter; adapters never see template syntax.
type Primitive struct {
	Kind    Kind
	Content string

	Progress *Progress

	IncludeBack   bool
	IncludeCancel bool

	// Choice / multi-choice.
	Options       []Option
	MinSelections int

	// Confirm.
	YesLabel string
	NoLabel  string

	// Media.
	Media *MediaSpec
}
