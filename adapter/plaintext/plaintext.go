// Package plaintext implements a text-only surface adapter suitable for SMS
// or a bare shell prompt: every primitive degrades to plain text via the
// negotiator's text-fallback path, and meta-actions arrive as typed
// commands ("cancel", "back") rather than dedicated controls.
package plaintext

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowmesh/workflow/adapter/httpapi"
	"github.com/flowmesh/workflow/negotiator"
	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
)

const surfaceID = "plaintext"
const version = "1.0.0"

var capabilities = primitive.SurfaceCapabilities{
	InlineButtons:      false,
	MultiSelectButtons: false,
	Reactions:          false,
	FileUpload:         false,
	VoiceMessages:      false,
	Threading:          false,
	RichText:           false,
	Modals:             false,
	MaxMessageLength:   160,
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// InboundMessage is the raw event ParseAction expects: one SMS/shell line
// of text from a sender, with the currently active workflow/step context
// supplied by the host hook layer since plaintext has no per-message
// routing information of its own.
type InboundMessage struct {
	From       string
	Body       string
	WorkflowID string
	StepID     string

	// PendingOptions lets the caller resolve a bare numeric reply ("2")
	// against the option list the last rendered choice fallback offered,
	// mirroring the numbered-list convention negotiator.textListFallback
	// produces. Empty when the active step isn't a choice/multi-choice.
	PendingOptions []primitive.Option
}

// Adapter implements surface.Adapter over a plain SMS/shell-style
// send-text transport.
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

	var text string
	var usedFallback bool
	var fallbackType string

	switch result.Strategy {
	case negotiator.StrategyNotifyBlocked:
		text, usedFallback, fallbackType = result.BlockedReason, true, string(negotiator.StrategyNotifyBlocked)
	case negotiator.StrategyTextFallback:
		text, usedFallback, fallbackType = result.FallbackPrimitive.Content, true, string(negotiator.StrategyTextFallback)
	case negotiator.StrategyNative:
		text = p.Content
	default:
		return surface.RenderedMessage{}, fmt.Errorf("plaintext: unknown negotiation strategy %q", result.Strategy)
	}

	text = truncate(text, capabilities.MaxMessageLength)
	msgID, err := a.send(ctx, target, text)
	return surface.RenderedMessage{MessageID: msgID, UsedFallback: usedFallback, FallbackType: fallbackType}, err
}

func truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	const ellipsis = "…"
	if max <= len(ellipsis) {
		return text[:max]
	}
	return text[:max-len(ellipsis)] + ellipsis
}

func (a *Adapter) send(ctx context.Context, target surface.Ref, text string) (string, error) {
	var resp sendResponse
	err := a.client.PostJSON(ctx, "/messages", sendRequest{To: target.SurfaceUserID, Body: text}, &resp)
	return resp.MessageID, err
}

func (a *Adapter) SendMessage(ctx context.Context, target surface.Ref, payload surface.MessagePayload) (string, error) {
	text := payload.Text
	if payload.Media != nil && payload.Media.URL != "" {
		text += " " + payload.Media.URL
	}
	return a.send(ctx, target, truncate(text, capabilities.MaxMessageLength))
}

// UpdateMessage is a no-op: SMS and shell transports cannot edit a
// previously delivered message.
func (a *Adapter) UpdateMessage(ctx context.Context, target surface.Ref, messageID string, payload surface.MessagePayload) error {
	return nil
}

// DeleteMessage is a no-op for the same reason.
func (a *Adapter) DeleteMessage(ctx context.Context, target surface.Ref, messageID string) error {
	return nil
}

// AcknowledgeAction is a no-op: a reply-text message already is the
// acknowledgement on a text-only transport.
func (a *Adapter) AcknowledgeAction(ctx context.Context, rawEvent any, text string) error {
	return nil
}

// ParseAction decodes an InboundMessage into the uniform ParsedUserAction
// shape. Meta-commands ("cancel"/"back") take priority over option
// resolution; a bare positive integer resolves against PendingOptions when
// supplied, otherwise the whole body is passed through as free text.
func (a *Adapter) ParseAction(rawEvent any) (*surface.ParsedUserAction, error) {
	msg, ok := rawEvent.(InboundMessage)
	if !ok {
		return nil, nil
	}
	ref := surface.Ref{SurfaceID: surfaceID, SurfaceUserID: msg.From}

	if kind, ok := surface.IsMetaCommand(msg.Body); ok {
		return &surface.ParsedUserAction{Kind: kind, WorkflowID: msg.WorkflowID, StepID: msg.StepID, Surface: ref, RawEvent: msg}, nil
	}

	if len(msg.PendingOptions) > 0 {
		if values, ok := resolveNumericSelection(msg.Body, msg.PendingOptions); ok {
			kind := surface.ActionSelection
			action := &surface.ParsedUserAction{Kind: kind, WorkflowID: msg.WorkflowID, StepID: msg.StepID, Surface: ref, RawEvent: msg}
			if len(values) == 1 {
				action.Value = values[0]
			} else {
				action.Values = values
			}
			return action, nil
		}
	}

	return &surface.ParsedUserAction{
		Kind: surface.ActionText, Text: strings.TrimSpace(msg.Body),
		WorkflowID: msg.WorkflowID, StepID: msg.StepID, Surface: ref, RawEvent: msg,
	}, nil
}

// resolveNumericSelection parses body as one or more comma-separated
// 1-based indices into options, matching the "Reply with a number" /
// "Reply with numbers separated by commas" instructions the negotiator's
// text fallback renders. Each part also accepts the option's own label,
// matched case-insensitively with surrounding whitespace trimmed, so a
// reply like "Pepperoni" resolves the same as "2".
func resolveNumericSelection(body string, options []primitive.Option) ([]string, bool) {
	parts := strings.Split(body, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		id, ok := resolveOnePart(strings.TrimSpace(part), options)
		if !ok {
			return nil, false
		}
		values = append(values, id)
	}
	if len(values) == 0 {
		return nil, false
	}
	return values, true
}

func resolveOnePart(part string, options []primitive.Option) (string, bool) {
	if n, err := strconv.Atoi(part); err == nil {
		if n < 1 || n > len(options) {
			return "", false
		}
		return options[n-1].ID, true
	}
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt.Label), part) {
			return opt.ID, true
		}
	}
	return "", false
}
