// Package voice implements a voice-pipeline surface adapter: info and
// text-input primitives render as synthesized speech, confirm renders as a
// spoken yes/no prompt handled by the caller's speech-to-intent layer, and
// anything requiring visual controls (buttons, modals, file upload) is
// notified-blocked since a phone call has no screen to render them on.
package voice

import (
	"context"
	"fmt"

	"github.com/flowmesh/workflow/adapter/httpapi"
	"github.com/flowmesh/workflow/negotiator"
	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
)

const surfaceID = "voice"
const version = "1.0.0"

var capabilities = primitive.SurfaceCapabilities{
	InlineButtons:      false,
	MultiSelectButtons: false,
	Reactions:          false,
	FileUpload:         false,
	VoiceMessages:      true,
	Threading:          false,
	RichText:           false,
	Modals:             false,
}

type speakRequest struct {
	CallID   string `json:"callId"`
	Text     string `json:"text,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
}

type speakResponse struct {
	UtteranceID string `json:"utteranceId"`
}

// SpeechEvent is the raw event ParseAction expects: the pipeline's
// speech-to-intent layer has already transcribed and classified the
// caller's utterance into either a yes/no intent or free-text content, and
// supplies the workflow/step it was spoken in response to.
type SpeechEvent struct {
	CallID     string
	Intent     string // "yes", "no", "cancel", "back", or "" for plain text
	Transcript string
	WorkflowID string
	StepID     string
}

// Adapter implements surface.Adapter over a voice-pipeline transport that
// speaks text or plays an audio clip into an active call.
type Adapter struct {
	client *httpapi.Client
}

// New constructs an Adapter posting to baseURL.
func New(baseURL string) *Adapter {
	return &Adapter{client: httpapi.New(baseURL, nil)}
}

func (a *Adapter) SurfaceID() string                           { return surfaceID }
func (a *Adapter) Version() string                             { return version }
func (a *Adapter) Capabilities() primitive.SurfaceCapabilities { return capabilities }

func (a *Adapter) Render(ctx context.Context, target surface.Ref, workflowID, stepID string, p primitive.Primitive) (surface.RenderedMessage, error) {
	result := negotiator.Negotiate(p, capabilities)
	if p.Kind == primitive.KindChoice || p.Kind == primitive.KindMultiChoice {
		result = negotiator.Result{Strategy: negotiator.StrategyNotifyBlocked, BlockedReason: "this step needs on-screen buttons, which a voice call cannot show"}
	}

	switch result.Strategy {
	case negotiator.StrategyNotifyBlocked:
		id, err := a.speak(ctx, target, result.BlockedReason, "")
		return surface.RenderedMessage{MessageID: id, UsedFallback: true, FallbackType: string(negotiator.StrategyNotifyBlocked)}, err

	case negotiator.StrategyTextFallback:
		id, err := a.speak(ctx, target, result.FallbackPrimitive.Content, "")
		return surface.RenderedMessage{MessageID: id, UsedFallback: true, FallbackType: string(negotiator.StrategyTextFallback)}, err

	case negotiator.StrategyNative:
		if p.Kind == primitive.KindMedia && p.Media != nil {
			id, err := a.speak(ctx, target, "", p.Media.URL)
			return surface.RenderedMessage{MessageID: id}, err
		}
		id, err := a.speak(ctx, target, p.Content, "")
		return surface.RenderedMessage{MessageID: id}, err

	default:
		return surface.RenderedMessage{}, fmt.Errorf("voice: unknown negotiation strategy %q", result.Strategy)
	}
}

func (a *Adapter) speak(ctx context.Context, target surface.Ref, text, audioURL string) (string, error) {
	var resp speakResponse
	err := a.client.PostJSON(ctx, "/speak", speakRequest{
		CallID:   target.SurfaceUserID,
		Text:     text,
		AudioURL: audioURL,
	}, &resp)
	return resp.UtteranceID, err
}

func (a *Adapter) SendMessage(ctx context.Context, target surface.Ref, payload surface.MessagePayload) (string, error) {
	if payload.Media != nil && payload.Media.Type == primitive.MediaVoice {
		return a.speak(ctx, target, "", payload.Media.URL)
	}
	return a.speak(ctx, target, payload.Text, "")
}

// UpdateMessage is a no-op: a spoken utterance cannot be edited after the
// fact.
func (a *Adapter) UpdateMessage(ctx context.Context, target surface.Ref, messageID string, payload surface.MessagePayload) error {
	return nil
}

// DeleteMessage is a no-op for the same reason.
func (a *Adapter) DeleteMessage(ctx context.Context, target surface.Ref, messageID string) error {
	return nil
}

// AcknowledgeAction is a no-op: the next spoken prompt is itself the
// acknowledgement.
func (a *Adapter) AcknowledgeAction(ctx context.Context, rawEvent any, text string) error {
	return nil
}

// ParseAction decodes a SpeechEvent into the uniform ParsedUserAction
// shape. Confirm steps arrive as a yes/no Intent from the speech-to-intent
// layer rather than as raw transcript text, since this surface has no
// button to press.
func (a *Adapter) ParseAction(rawEvent any) (*surface.ParsedUserAction, error) {
	ev, ok := rawEvent.(SpeechEvent)
	if !ok {
		return nil, nil
	}
	ref := surface.Ref{SurfaceID: surfaceID, SurfaceUserID: ev.CallID}

	switch ev.Intent {
	case "cancel":
		return &surface.ParsedUserAction{Kind: surface.ActionCancel, WorkflowID: ev.WorkflowID, StepID: ev.StepID, Surface: ref, RawEvent: ev}, nil
	case "back":
		return &surface.ParsedUserAction{Kind: surface.ActionBack, WorkflowID: ev.WorkflowID, StepID: ev.StepID, Surface: ref, RawEvent: ev}, nil
	case "yes":
		return &surface.ParsedUserAction{Kind: surface.ActionSelection, Value: surface.ActionIDYes, WorkflowID: ev.WorkflowID, StepID: ev.StepID, Surface: ref, RawEvent: ev}, nil
	case "no":
		return &surface.ParsedUserAction{Kind: surface.ActionSelection, Value: surface.ActionIDNo, WorkflowID: ev.WorkflowID, StepID: ev.StepID, Surface: ref, RawEvent: ev}, nil
	default:
		return &surface.ParsedUserAction{Kind: surface.ActionText, Text: ev.Transcript, WorkflowID: ev.WorkflowID, StepID: ev.StepID, Surface: ref, RawEvent: ev}, nil
	}
}
