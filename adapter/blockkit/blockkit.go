// Package blockkit implements a Slack-style block-kit surface adapter:
// choice/confirm primitives render as button blocks, multi-choice renders
// as a native multi-select, modal submissions (wf_modal: ids) are parsed
// back into text actions though Render itself posts message blocks only and
// opens no modal, and messages support threading and rich (markdown) text.
package blockkit

import (
	"context"
	"fmt"

	"github.com/flowmesh/workflow/adapter/httpapi"
	"github.com/flowmesh/workflow/negotiator"
	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
)

const surfaceID = "block-kit"
const version = "1.0.0"

var capabilities = primitive.SurfaceCapabilities{
	InlineButtons:      true,
	MultiSelectButtons: true,
	Reactions:          true,
	FileUpload:         true,
	VoiceMessages:      false,
	Threading:          true,
	RichText:           true,
	Modals:             true,
	MaxButtonsPerRow:   5,
	MaxButtonRows:      10,
}

type block struct {
	Type     string    `json:"type"`
	Text     *textObj  `json:"text,omitempty"`
	Elements []element `json:"elements,omitempty"`
}

type textObj struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type element struct {
	Type     string    `json:"type"`
	ActionID string    `json:"actionId"`
	Text     *textObj  `json:"text,omitempty"`
	Style    string    `json:"style,omitempty"`
	Options  []optElem `json:"options,omitempty"`
}

type optElem struct {
	Text  *textObj `json:"text"`
	Value string   `json:"value"`
}

type sendRequest struct {
	ChannelID string  `json:"channelId"`
	ThreadID  string  `json:"threadId,omitempty"`
	Blocks    []block `json:"blocks"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// InteractionEvent is the raw event ParseAction expects: a block-action
// (button/select) click carries ActionID/Value/Values, a modal submission
// carries ModalID plus Fields, and a plain channel message carries Text.
type InteractionEvent struct {
	UserID    string
	ChannelID string
	ThreadID  string

	ActionID string
	Value    string
	Values   []string

	ModalID string
	Fields  map[string]string

	Text string
}

// Adapter implements surface.Adapter over a Slack-style block-kit transport.
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
		msgID, err := a.postBlocks(ctx, target, []block{textBlock(result.BlockedReason)})
		return surface.RenderedMessage{MessageID: msgID, UsedFallback: true, FallbackType: string(negotiator.StrategyNotifyBlocked)}, err

	case negotiator.StrategyTextFallback:
		msgID, err := a.postBlocks(ctx, target, []block{textBlock(result.FallbackPrimitive.Content)})
		return surface.RenderedMessage{MessageID: msgID, UsedFallback: true, FallbackType: string(negotiator.StrategyTextFallback)}, err

	case negotiator.StrategyNative:
		blocks := renderNative(workflowID, stepID, p)
		msgID, err := a.postBlocks(ctx, target, blocks)
		return surface.RenderedMessage{MessageID: msgID}, err

	default:
		return surface.RenderedMessage{}, fmt.Errorf("blockkit: unknown negotiation strategy %q", result.Strategy)
	}
}

func renderNative(workflowID, stepID string, p primitive.Primitive) []block {
	blocks := []block{textBlock(p.Content)}

	switch p.Kind {
	case primitive.KindChoice, primitive.KindConfirm:
		blocks = append(blocks, block{Type: "actions", Elements: buttonElements(workflowID, stepID, p)})
	case primitive.KindMultiChoice:
		blocks = append(blocks, block{Type: "actions", Elements: []element{multiSelectElement(workflowID, stepID, p)}})
	case primitive.KindMedia:
		if p.Media != nil {
			blocks = append(blocks, textBlock(p.Media.URL))
		}
	}

	var meta []element
	if p.IncludeBack {
		meta = append(meta, buttonElement(workflowID, stepID, surface.ActionIDBack, "Back", ""))
	}
	if p.IncludeCancel {
		meta = append(meta, buttonElement(workflowID, stepID, surface.ActionIDCancel, "Cancel", "danger"))
	}
	if len(meta) > 0 {
		blocks = append(blocks, block{Type: "actions", Elements: meta})
	}
	return blocks
}

func buttonElements(workflowID, stepID string, p primitive.Primitive) []element {
	var elems []element
	switch p.Kind {
	case primitive.KindChoice:
		for _, opt := range p.Options {
			elems = append(elems, buttonElement(workflowID, stepID, opt.ID, opt.Label, opt.Style))
		}
	case primitive.KindConfirm:
		elems = append(elems,
			buttonElement(workflowID, stepID, surface.ActionIDYes, p.YesLabel, "primary"),
			buttonElement(workflowID, stepID, surface.ActionIDNo, p.NoLabel, ""),
		)
	}
	return elems
}

func buttonElement(workflowID, stepID, actionID, label, style string) element {
	return element{
		Type:     "button",
		ActionID: surface.EncodeActionID(workflowID, stepID, actionID),
		Text:     &textObj{Type: "plain_text", Text: label},
		Style:    style,
	}
}

func multiSelectElement(workflowID, stepID string, p primitive.Primitive) element {
	opts := make([]optElem, 0, len(p.Options))
	for _, opt := range p.Options {
		opts = append(opts, optElem{
			Text:  &textObj{Type: "plain_text", Text: opt.Label},
			Value: surface.EncodeActionID(workflowID, stepID, opt.ID),
		})
	}
	return element{
		Type:     "multi_static_select",
		ActionID: surface.EncodeActionID(workflowID, stepID, "multi"),
		Options:  opts,
	}
}

func textBlock(text string) block {
	return block{Type: "section", Text: &textObj{Type: "mrkdwn", Text: text}}
}

func (a *Adapter) postBlocks(ctx context.Context, target surface.Ref, blocks []block) (string, error) {
	var resp sendResponse
	err := a.client.PostJSON(ctx, "/chat.postMessage", sendRequest{
		ChannelID: target.ChannelID,
		ThreadID:  target.ThreadID,
		Blocks:    blocks,
	}, &resp)
	return resp.MessageID, err
}

func (a *Adapter) SendMessage(ctx context.Context, target surface.Ref, payload surface.MessagePayload) (string, error) {
	blocks := []block{textBlock(payload.Text)}
	if payload.Media != nil && payload.Media.URL != "" {
		blocks = append(blocks, textBlock(payload.Media.URL))
	}
	return a.postBlocks(ctx, target, blocks)
}

func (a *Adapter) UpdateMessage(ctx context.Context, target surface.Ref, messageID string, payload surface.MessagePayload) error {
	return a.client.PostJSON(ctx, "/chat.update", struct {
		ChannelID string  `json:"channelId"`
		MessageID string  `json:"messageId"`
		Blocks    []block `json:"blocks"`
	}{ChannelID: target.ChannelID, MessageID: messageID, Blocks: []block{textBlock(payload.Text)}}, nil)
}

func (a *Adapter) DeleteMessage(ctx context.Context, target surface.Ref, messageID string) error {
	return a.client.PostJSON(ctx, "/chat.delete", struct {
		ChannelID string `json:"channelId"`
		MessageID string `json:"messageId"`
	}{ChannelID: target.ChannelID, MessageID: messageID}, nil)
}

func (a *Adapter) AcknowledgeAction(ctx context.Context, rawEvent any, text string) error {
	ev, ok := rawEvent.(InteractionEvent)
	if !ok {
		return nil
	}
	return a.client.PostJSON(ctx, "/chat.postEphemeral", struct {
		UserID    string `json:"userId"`
		ChannelID string `json:"channelId"`
		Text      string `json:"text"`
	}{UserID: ev.UserID, ChannelID: ev.ChannelID, Text: text}, nil)
}

// ParseAction decodes an InteractionEvent into the uniform ParsedUserAction
// shape. Modal submissions resolve to an ActionText action whose Text is
// the value of a single-field submission, or empty when the submission has
// several fields; block-action
// clicks decode their actionId the same way inlinekeyboard does.
func (a *Adapter) ParseAction(rawEvent any) (*surface.ParsedUserAction, error) {
	ev, ok := rawEvent.(InteractionEvent)
	if !ok {
		return nil, nil
	}
	ref := surface.Ref{SurfaceID: surfaceID, SurfaceUserID: ev.UserID, ChannelID: ev.ChannelID, ThreadID: ev.ThreadID}

	if ev.ModalID != "" {
		workflowID, stepID, ok := surface.DecodeModalID(ev.ModalID)
		if !ok {
			return nil, fmt.Errorf("blockkit: malformed modal id %q", ev.ModalID)
		}
		return &surface.ParsedUserAction{
			Kind: surface.ActionText, Text: fields(ev.Fields),
			WorkflowID: workflowID, StepID: stepID, Surface: ref, RawEvent: ev,
		}, nil
	}

	if ev.ActionID != "" {
		workflowID, stepID, actionID, ok := surface.DecodeActionID(ev.ActionID)
		if !ok {
			return nil, fmt.Errorf("blockkit: malformed action id %q", ev.ActionID)
		}
		switch actionID {
		case surface.ActionIDCancel:
			return &surface.ParsedUserAction{Kind: surface.ActionCancel, WorkflowID: workflowID, StepID: stepID, Surface: ref, RawEvent: ev}, nil
		case surface.ActionIDBack:
			return &surface.ParsedUserAction{Kind: surface.ActionBack, WorkflowID: workflowID, StepID: stepID, Surface: ref, RawEvent: ev}, nil
		case "multi":
			values := decodeMultiValues(ev.Values)
			return &surface.ParsedUserAction{Kind: surface.ActionSelection, Values: values, WorkflowID: workflowID, StepID: stepID, Surface: ref, RawEvent: ev}, nil
		default:
			return &surface.ParsedUserAction{Kind: surface.ActionSelection, Value: actionID, WorkflowID: workflowID, StepID: stepID, Surface: ref, RawEvent: ev}, nil
		}
	}

	return nil, nil
}

// decodeMultiValues strips the wf:/s:/a: envelope off each multi-select
// option value, leaving the bare option ids the engine expects.
func decodeMultiValues(raw []string) []string {
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if _, _, actionID, ok := surface.DecodeActionID(v); ok {
			values = append(values, actionID)
		} else {
			values = append(values, v)
		}
	}
	return values
}

func fields(f map[string]string) string {
	if len(f) == 1 {
		for _, v := range f {
			return v
		}
	}
	// Multi-field modal submissions have no single scalar value; callers
	// needing per-field access should inspect InteractionEvent.Fields
	// directly via RawEvent rather than relying on Text.
	return ""
}
