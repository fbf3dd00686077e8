// Package calendly talks to the Calendly scheduling API and decodes the
// webhook events it sends back when invitees book, cancel or reschedule.
package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-crm/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.calendly")

const defaultAPIBaseURL = "https://api.calendly.com"

// ErrNotConfigured is returned when the API token or owner URI is missing.
var ErrNotConfigured = errors.New("calendly: api token and owner uri required")

// Invitee identifies who a scheduling link is minted for. Token is an opaque
// correlation value carried back in webhook tracking data.
type Invitee struct {
	Name  string
	Email string
	Token string
}

// Config configures a Client.
type Config struct {
	AccessToken string
	OwnerURI    string
	BookingURL  string
	APIBaseURL  string
	HTTPClient  *http.Client
}

// Client creates single-use scheduling links.
type Client struct {
	accessToken string
	ownerURI    string
	bookingURL  string
	apiBaseURL  string
	httpClient  *http.Client
	logger      *logging.Logger
}

// NewClient builds a Calendly client.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	return &Client{
		accessToken: strings.TrimSpace(cfg.AccessToken),
		ownerURI:    strings.TrimSpace(cfg.OwnerURI),
		bookingURL:  strings.TrimSpace(cfg.BookingURL),
		apiBaseURL:  base,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Configured reports whether the API can be called.
func (c *Client) Configured() bool {
	return c != nil && c.accessToken != "" && c.ownerURI != ""
}

type schedulingLinkRequest struct {
	MaxEventCount     int              `json:"max_event_count"`
	Owner             string           `json:"owner"`
	OwnerType         string           `json:"owner_type"`
	SendNotifications bool             `json:"send_notifications"`
	Invitees          []inviteeRequest `json:"invitees,omitempty"`
}

type inviteeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type schedulingLinkResponse struct {
	Resource struct {
		BookingURL string `json:"booking_url"`
		Owner      string `json:"owner"`
		OwnerType  string `json:"owner_type"`
	} `json:"resource"`
}

// CreateSchedulingLink requests a one-booking link for the invitee. The
// returned URL carries the invitee details and correlation token as query
// parameters.
func (c *Client) CreateSchedulingLink(ctx context.Context, inv Invitee) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	ctx, span := tracer.Start(ctx, "calendly.scheduling_links.create")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.invitee_email", inv.Email))

	body, err := json.Marshal(schedulingLinkRequest{
		MaxEventCount:     1,
		Owner:             c.ownerURI,
		OwnerType:         "User",
		SendNotifications: false,
		Invitees:          []inviteeRequest{{Email: inv.Email, Name: inv.Name}},
	})
	if err != nil {
		return "", fmt.Errorf("calendly: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/scheduling_links", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("calendly: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("calendly: create scheduling link: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("calendly: create scheduling link: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return "", err
	}

	var parsed schedulingLinkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("calendly: decode response: %w", err)
	}
	if parsed.Resource.BookingURL == "" {
		return "", errors.New("calendly: response missing booking_url")
	}
	return withInviteeParams(parsed.Resource.BookingURL, inv), nil
}

// DirectURL returns the public booking page pre-filled for the invitee. It
// needs no network access and is the fallback when the API is unavailable.
func (c *Client) DirectURL(inv Invitee) string {
	return withInviteeParams(c.bookingURL, inv)
}

func withInviteeParams(raw string, inv Invitee) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("hide_gdpr_banner", "1")
	if inv.Name != "" {
		q.Set("name", inv.Name)
	}
	if inv.Email != "" {
		q.Set("email", inv.Email)
	}
	if inv.Token != "" {
		q.Set("utm_content", inv.Token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
