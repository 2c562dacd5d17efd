package surface

import (
	"context"

	"github.com/flowmesh/workflow/primitive"
)

// MessagePayload is a free-form, non-workflow message an adapter can send
// via SendMessage/UpdateMessage. It mirrors the subset of primitive.Primitive
// fields that make sense outside a workflow render (text plus optional
// media), without dragging in progress/option/transition concerns.
type MessagePayload struct {
	Text  string
	Media *primitive.MediaSpec
}

// RenderedMessage is what an adapter hands back after rendering a
// primitive.Primitive.
type RenderedMessage struct {
	MessageID    string
	UsedFallback bool
	FallbackType string
}

// Adapter is the contract every surface-specific transport binding
// implements. The engine and router depend only on this interface; they
// never import a concrete adapter package.
type Adapter interface {
	SurfaceID() string
	Version() string
	Capabilities() primitive.SurfaceCapabilities

	// Render emits p as a message to target, preserving the wf:/wf_modal:
	// callback encoding for any interactive controls it creates.
	Render(ctx context.Context, target Ref, workflowID, stepID string, p primitive.Primitive) (RenderedMessage, error)

	// ParseAction decodes a transport-native raw event into the uniform
	// ParsedUserAction shape, or returns (nil, nil) if rawEvent isn't a
	// workflow-relevant event this adapter recognizes.
	ParseAction(rawEvent any) (*ParsedUserAction, error)

	// SendMessage emits a free-form, non-workflow message.
	SendMessage(ctx context.Context, target Ref, payload MessagePayload) (messageID string, err error)

	// UpdateMessage best-effort edits a previously sent message in place. It
	// must silently no-op (return nil) for message kinds the transport
	// cannot edit.
	UpdateMessage(ctx context.Context, target Ref, messageID string, payload MessagePayload) error

	// DeleteMessage best-effort deletes a previously sent message.
	DeleteMessage(ctx context.Context, target Ref, messageID string) error

	// AcknowledgeAction performs a transport-specific quick-ack for rawEvent,
	// e.g. an ephemeral "got it" reply. May be a no-op when the transport
	// already acknowledges at the HTTP layer.
	AcknowledgeAction(ctx context.Context, rawEvent any, text string) error
}
