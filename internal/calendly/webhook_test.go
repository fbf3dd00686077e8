package calendly

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookEvent(t *testing.T) {
	body := []byte(`{
		"event_type": "invitee.created",
		"payload": {
			"invitee": {
				"email": "jane@example.com",
				"name": "Jane Doe",
				"questions_and_answers": [
					{"question": "Reason", "answer": "Back pain"},
					{"question": "First visit?", "answer": "Yes"}
				]
			},
			"event": {"start_time": "2024-06-01T14:30:00Z", "uuid": "EV-1"},
			"tracking": {"utm_content": "corr-9"}
		}
	}`)

	evt, err := ParseWebhookEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventInviteeCreated, evt.Type())
	assert.Equal(t, "EV-1", evt.Payload.Event.UUID)
	assert.Equal(t, time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC), evt.Payload.Event.StartTime.UTC())
	assert.Equal(t, "corr-9", evt.Payload.Tracking.UTMContent)
	assert.Equal(t, "Reason: Back pain\nFirst visit?: Yes", evt.Payload.Invitee.Notes())
}

func TestParseWebhookEventRejectsMissingType(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`{"payload":{}}`))
	require.Error(t, err)
	_, err = ParseWebhookEvent([]byte(`not json`))
	require.Error(t, err)

	evt, err := ParseWebhookEvent([]byte(`{"event":"invitee.canceled","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, EventInviteeCanceled, evt.Type())
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_type":"invitee.created"}`)
	secret := "shh"

	header := Sign(secret, time.Unix(1717250000, 0), body)
	assert.NoError(t, VerifySignature(secret, header, body))
	assert.ErrorIs(t, VerifySignature("other", header, body), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(secret, header, []byte(`{}`)), ErrInvalidSignature)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	bare := hex.EncodeToString(mac.Sum(nil))
	assert.NoError(t, VerifySignature(secret, bare, body))

	assert.ErrorIs(t, VerifySignature(secret, "", body), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature(secret, "t=1,v1=zz", body), ErrInvalidSignature)
}

func TestVerifySignatureWithoutSecretAcceptsAll(t *testing.T) {
	assert.NoError(t, VerifySignature("", "", []byte("anything")))
}
