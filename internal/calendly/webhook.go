package calendly

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Webhook event types handled by the clinic.
const (
	EventInviteeCreated     = "invitee.created"
	EventInviteeCanceled    = "invitee.canceled"
	EventInviteeRescheduled = "invitee.rescheduled"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "Calendly-Webhook-Signature"

var (
	ErrMissingSignature = errors.New("calendly: missing webhook signature")
	ErrInvalidSignature = errors.New("calendly: invalid webhook signature")
)

// WebhookEvent is the envelope Calendly posts to the webhook endpoint.
type WebhookEvent struct {
	EventType string         `json:"event_type"`
	Event     string         `json:"event,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	Payload   WebhookPayload `json:"payload"`
}

// Type returns the event type, accepting either envelope key.
func (e WebhookEvent) Type() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.Event
}

// WebhookPayload holds the invitee and scheduled event.
type WebhookPayload struct {
	Invitee  WebhookInvitee `json:"invitee"`
	Event    ScheduledEvent `json:"event"`
	Tracking Tracking       `json:"tracking"`
}

type WebhookInvitee struct {
	Email               string              `json:"email"`
	Name                string              `json:"name"`
	QuestionsAndAnswers []QuestionAndAnswer `json:"questions_and_answers,omitempty"`
}

type QuestionAndAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type ScheduledEvent struct {
	StartTime time.Time `json:"start_time"`
	UUID      string    `json:"uuid"`
}

// Tracking echoes the UTM parameters present on the booking URL.
type Tracking struct {
	UTMContent string `json:"utm_content,omitempty"`
}

// ParseWebhookEvent decodes a raw webhook body.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return WebhookEvent{}, fmt.Errorf("calendly: decode webhook: %w", err)
	}
	if evt.Type() == "" {
		return WebhookEvent{}, errors.New("calendly: webhook missing event_type")
	}
	return evt, nil
}

// Notes renders the questions and answers as "question: answer" lines.
func (i WebhookInvitee) Notes() string {
	lines := make([]string, 0, len(i.QuestionsAndAnswers))
	for _, qa := range i.QuestionsAndAnswers {
		lines = append(lines, qa.Question+": "+qa.Answer)
	}
	return strings.Join(lines, "\n")
}

// VerifySignature checks header against an HMAC-SHA256 of body. The header
// may be Calendly's "t=<unix>,v1=<hex>" form, signed over "<t>.<body>", or a
// bare hex digest of body. An empty secret accepts every request.
func VerifySignature(secret, header string, body []byte) error {
	if secret == "" {
		return nil
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	timestamp, signature := parseSignatureHeader(header)
	signed := body
	if timestamp != "" {
		signed = append([]byte(timestamp+"."), body...)
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(signed)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces a "t=<unix>,v1=<hex>" header for body. Used by tests and
// local tooling that replays webhook fixtures.
func Sign(secret string, ts time.Time, body []byte) string {
	t := fmt.Sprintf("%d", ts.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t + "."))
	mac.Write(body)
	return "t=" + t + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (timestamp, signature string) {
	if !strings.Contains(header, "=") {
		return "", header
	}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	return timestamp, signature
}
