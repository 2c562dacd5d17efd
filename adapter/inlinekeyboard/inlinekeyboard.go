// Package inlinekeyboard implements a Telegram-style inline-button surface
// adapter: choice/confirm/multi-choice primitives render as rows of
// callback-tagged buttons, text input and info render as plain messages,
// and media supports images/files/voice notes natively.
package inlinekeyboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowmesh/workflow/adapter/httpapi"
	"github.com/flowmesh/workflow/negotiator"
	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
)

const surfaceID = "inline-keyboard"
const version = "1.0.0"

var capabilities = primitive.SurfaceCapabilities{
	InlineButtons:      true,
	MultiSelectButtons: false,
	Reactions:          true,
	FileUpload:         true,
	VoiceMessages:      true,
	Threading:          false,
	RichText:           false,
	Modals:             false,
	MaxButtonsPerRow:   3,
	MaxButtonRows:      5,
}

// sendRequest/sendResponse mirror the shape a Telegram-compatible webhook
// bridge expects/returns; see adapter/httpapi for why this is a plain HTTP
// client rather than a vendored bot SDK.
type sendRequest struct {
	ChatID    string             `json:"chatId"`
	Text      string             `json:"text"`
	Buttons   [][]httpapi.Button `json:"buttons,omitempty"`
	MediaURL  string             `json:"mediaUrl,omitempty"`
	MediaType string             `json:"mediaType,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// CallbackEvent is the raw event ParseAction expects: either a button
// press (Data populated with the wf: encoding) or a free-text
// reply, surfaced identically to a Telegram update.
type CallbackEvent struct {
	UserID string
	Data   string // callback_data from a button press
	Text   string // free-text message body, mutually exclusive with Data
}

// Adapter implements surface.Adapter over a Telegram-style inline-keyboard
// transport.
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

	switch result.Strategy {
	case negotiator.StrategyNotifyBlocked:
		msgID, err := a.post(ctx, target, result.BlockedReason, nil)
		return surface.RenderedMessage{MessageID: msgID, UsedFallback: true, FallbackType: string(negotiator.StrategyNotifyBlocked)}, err

	case negotiator.StrategyTextFallback:
		msgID, err := a.post(ctx, target, result.FallbackPrimitive.Content, nil)
		return surface.RenderedMessage{MessageID: msgID, UsedFallback: true, FallbackType: string(negotiator.StrategyTextFallback)}, err

	case negotiator.StrategyNative:
		if p.Kind == primitive.KindMedia {
			msgID, err := a.postMedia(ctx, target, p.Content, p.Media)
			return surface.RenderedMessage{MessageID: msgID}, err
		}
		buttons := buildButtons(workflowID, stepID, p)
		msgID, err := a.post(ctx, target, p.Content, buttons)
		return surface.RenderedMessage{MessageID: msgID}, err

	default:
		return surface.RenderedMessage{}, fmt.Errorf("inlinekeyboard: unknown negotiation strategy %q", result.Strategy)
	}
}

func buildButtons(workflowID, stepID string, p primitive.Primitive) [][]httpapi.Button {
	const perRow = 3
	var flat []httpapi.Button

	switch p.Kind {
	case primitive.KindChoice, primitive.KindMultiChoice:
		for _, opt := range p.Options {
			flat = append(flat, httpapi.Button{
				ID:    surface.EncodeActionID(workflowID, stepID, opt.ID),
				Label: opt.Label,
				Style: opt.Style,
			})
		}
	case primitive.KindConfirm:
		flat = append(flat,
			httpapi.Button{ID: surface.EncodeActionID(workflowID, stepID, surface.ActionIDYes), Label: p.YesLabel},
			httpapi.Button{ID: surface.EncodeActionID(workflowID, stepID, surface.ActionIDNo), Label: p.NoLabel},
		)
	}
	if p.IncludeBack {
		flat = append(flat, httpapi.Button{ID: surface.EncodeActionID(workflowID, stepID, surface.ActionIDBack), Label: "Back"})
	}
	if p.IncludeCancel {
		flat = append(flat, httpapi.Button{ID: surface.EncodeActionID(workflowID, stepID, surface.ActionIDCancel), Label: "Cancel"})
	}
	if len(flat) == 0 {
		return nil
	}

	var rows [][]httpapi.Button
	for len(flat) > 0 {
		n := perRow
		if n > len(flat) {
			n = len(flat)
		}
		rows = append(rows, flat[:n])
		flat = flat[n:]
	}
	return rows
}

func (a *Adapter) post(ctx context.Context, target surface.Ref, text string, buttons [][]httpapi.Button) (string, error) {
	var resp sendResponse
	err := a.client.PostJSON(ctx, "/sendMessage", sendRequest{
		ChatID:  target.SurfaceUserID,
		Text:    text,
		Buttons: buttons,
	}, &resp)
	return resp.MessageID, err
}

func (a *Adapter) postMedia(ctx context.Context, target surface.Ref, caption string, media *primitive.MediaSpec) (string, error) {
	req := sendRequest{ChatID: target.SurfaceUserID, Text: caption}
	if media != nil {
		req.MediaURL = media.URL
		req.MediaType = string(media.Type)
	}
	var resp sendResponse
	err := a.client.PostJSON(ctx, "/sendMedia", req, &resp)
	return resp.MessageID, err
}

func (a *Adapter) SendMessage(ctx context.Context, target surface.Ref, payload surface.MessagePayload) (string, error) {
	text := payload.Text
	if payload.Media != nil && payload.Media.URL != "" {
		text += "\n" + payload.Media.URL
	}
	return a.post(ctx, target, text, nil)
}

func (a *Adapter) UpdateMessage(ctx context.Context, target surface.Ref, messageID string, payload surface.MessagePayload) error {
	return a.client.PostJSON(ctx, "/editMessage", struct {
		ChatID    string `json:"chatId"`
		MessageID string `json:"messageId"`
		Text      string `json:"text"`
	}{ChatID: target.SurfaceUserID, MessageID: messageID, Text: payload.Text}, nil)
}

func (a *Adapter) DeleteMessage(ctx context.Context, target surface.Ref, messageID string) error {
	return a.client.PostJSON(ctx, "/deleteMessage", struct {
		ChatID    string `json:"chatId"`
		MessageID string `json:"messageId"`
	}{ChatID: target.SurfaceUserID, MessageID: messageID}, nil)
}

func (a *Adapter) AcknowledgeAction(ctx context.Context, rawEvent any, text string) error {
	ev, ok := rawEvent.(CallbackEvent)
	if !ok || ev.Data == "" {
		return nil
	}
	return a.client.PostJSON(ctx, "/answerCallback", struct {
		UserID string `json:"userId"`
		Text   string `json:"text"`
	}{UserID: ev.UserID, Text: text}, nil)
}

// ParseAction decodes a CallbackEvent into the uniform ParsedUserAction
// shape. A button press carries Data; a free-text reply carries Text and
// has no workflow/step context of its own, so this adapter returns
// (nil, nil) for it: "not a workflow action I recognize."
func (a *Adapter) ParseAction(rawEvent any) (*surface.ParsedUserAction, error) {
	ev, ok := rawEvent.(CallbackEvent)
	if !ok {
		return nil, nil
	}

	if ev.Data != "" {
		workflowID, stepID, actionID, ok := surface.DecodeActionID(ev.Data)
		if !ok {
			return nil, fmt.Errorf("inlinekeyboard: malformed callback data %q", ev.Data)
		}
		ref := surface.Ref{SurfaceID: surfaceID, SurfaceUserID: ev.UserID}
		switch actionID {
		case surface.ActionIDCancel:
			return &surface.ParsedUserAction{Kind: surface.ActionCancel, WorkflowID: workflowID, StepID: stepID, Surface: ref, RawEvent: ev}, nil
		case surface.ActionIDBack:
			return &surface.ParsedUserAction{Kind: surface.ActionBack, WorkflowID: workflowID, StepID: stepID, Surface: ref, RawEvent: ev}, nil
		default:
			// Multi-select encodes several option ids as a comma-joined
			// actionId segment; a single id is the common case.
			values := strings.Split(actionID, ",")
			return &surface.ParsedUserAction{
				Kind: surface.ActionSelection, Value: values[0], Values: values,
				WorkflowID: workflowID, StepID: stepID, Surface: ref, RawEvent: ev,
			}, nil
		}
	}

	return nil, nil
}
