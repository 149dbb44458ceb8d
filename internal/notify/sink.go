package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mrz1836/cutover/internal/constants"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// DeliveryError is a rejected delivery. StatusCode is 0 for transport errors.
type DeliveryError struct {
	Sink       string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Sink, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{cerrors.ErrNotificationFailed}
	}
	return []error{cerrors.ErrNotificationFailed, e.Err}
}

// Retryable reports whether a failed delivery is worth repeating: transport
// errors, 429 and 5xx. Other errors are treated as transient too.
func Retryable(err error) bool {
	var de *DeliveryError
	if !errors.As(err, &de) {
		return true
	}
	return de.StatusCode == 0 || de.StatusCode == http.StatusTooManyRequests || de.StatusCode >= http.StatusInternalServerError
}

// postJSON sends body to url and maps non-2xx answers to a DeliveryError.
func postJSON(ctx context.Context, client *http.Client, sink, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", sink, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &DeliveryError{Sink: sink, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constants.NotificationSource)

	resp, err := client.Do(req)
	if err != nil {
		return &DeliveryError{Sink: sink, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{Sink: sink, StatusCode: resp.StatusCode}
	}
	return nil
}

// webhookPayload is the chat-webhook body.
type webhookPayload struct {
	Text        string              `json:"text"`
	Attachments []webhookAttachment `json:"attachments"`
}

type webhookAttachment struct {
	Color  string         `json:"color"`
	Fields []webhookField `json:"fields"`
}

type webhookField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// WebhookSink posts events to a chat webhook.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a WebhookSink. A nil client uses http.DefaultClient.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{url: url, client: client}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, ev Event) error {
	fields := make([]webhookField, len(ev.Fields))
	for i, f := range ev.Fields {
		fields[i] = webhookField{Title: f.Title, Value: f.Value, Short: f.Short}
	}
	return postJSON(ctx, s.client, s.Name(), s.url, webhookPayload{
		Text:        ev.Summary,
		Attachments: []webhookAttachment{{Color: color(ev.Severity), Fields: fields}},
	})
}

func color(s constants.Severity) string {
	switch s {
	case constants.SeverityInfo:
		return "good"
	case constants.SeverityWarning:
		return "warning"
	default:
		return "danger"
	}
}

// pagerPayload is the paging event body.
type pagerPayload struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     pagerDetails `json:"payload"`
}

type pagerDetails struct {
	Summary       string            `json:"summary"`
	Source        string            `json:"source"`
	Severity      string            `json:"severity"`
	CustomDetails map[string]string `json:"custom_details"`
}

// PagerSink triggers paging events.
type PagerSink struct {
	url        string
	routingKey string
	client     *http.Client
}

// NewPagerSink creates a PagerSink. An empty url uses the default events endpoint.
func NewPagerSink(url, routingKey string, client *http.Client) *PagerSink {
	if url == "" {
		url = constants.DefaultPagerURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &PagerSink{url: url, routingKey: routingKey, client: client}
}

// Name implements Sink.
func (s *PagerSink) Name() string { return "pager" }

// Send implements Sink.
func (s *PagerSink) Send(ctx context.Context, ev Event) error {
	details := make(map[string]string, len(ev.Fields))
	for _, f := range ev.Fields {
		details[f.Title] = f.Value
	}
	return postJSON(ctx, s.client, s.Name(), s.url, pagerPayload{
		RoutingKey:  s.routingKey,
		EventAction: "trigger",
		DedupKey:    ev.Key,
		Payload: pagerDetails{
			Summary:       ev.Summary,
			Source:        constants.NotificationSource,
			Severity:      string(ev.Severity),
			CustomDetails: details,
		},
	})
}
