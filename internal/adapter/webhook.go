package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"

	"github.com/go-resty/resty/v2"
)

// WebhookAdapter talks to conference platforms (zoom, teams, meet, ...)
// through a small HTTP contract:
//
//	GET  {base}/presence/{user}  -> {"status": "...", "confidence": 0.8}
//	POST {base}/sessions         -> {"handle": "...", "link": "..."}
//	GET  {base}/healthz
type WebhookAdapter struct {
	platform string
	client   *resty.Client
}

func NewWebhookAdapter(platform, baseURL, authToken string, timeout time.Duration) *WebhookAdapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	if authToken != "" {
		client.SetAuthToken(authToken)
	}

	return &WebhookAdapter{
		platform: platform,
		client:   client,
	}
}

func (a *WebhookAdapter) Platform() string {
	return a.platform
}

type webhookPresence struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

func (a *WebhookAdapter) FetchPresence(ctx context.Context, platformUserID string) (model.PresenceStatus, float64, error) {
	var out webhookPresence
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("user", platformUserID).
		Get("/presence/{user}")
	if err != nil {
		return model.PresenceUnknown, 0.0, errors.MapAdapterError(err)
	}
	if resp.IsError() {
		return model.PresenceUnknown, 0.0, fmt.Errorf("presence fetch returned %d: %w", resp.StatusCode(), errors.ErrAdapterError)
	}

	status := model.PresenceStatus(out.Status)
	if status.Priority() == 0 && status != model.PresenceUnknown {
		return model.PresenceUnknown, 0.0, fmt.Errorf("unrecognized status %q: %w", out.Status, errors.ErrAdapterError)
	}

	confidence := out.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return status, confidence, nil
}

type webhookSessionRequest struct {
	Participants    []string `json:"participants"`
	Purpose         string   `json:"purpose,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	RequestID       string   `json:"request_id,omitempty"`
}

type webhookSessionResponse struct {
	Handle string `json:"handle"`
	Link   string `json:"link"`
}

func (a *WebhookAdapter) CreateSession(ctx context.Context, participants []string, meta SessionMetadata) (SessionHandle, error) {
	var out webhookSessionResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(webhookSessionRequest{
			Participants:    participants,
			Purpose:         meta.Purpose,
			DurationMinutes: meta.DurationMinutes,
			RequestID:       meta.RequestID,
		}).
		SetResult(&out).
		Post("/sessions")
	if err != nil {
		return SessionHandle{}, errors.MapAdapterError(err)
	}
	if resp.IsError() {
		return SessionHandle{}, fmt.Errorf("session create returned %d: %w", resp.StatusCode(), errors.ErrAdapterError)
	}
	if out.Handle == "" {
		return SessionHandle{}, fmt.Errorf("session create returned no handle: %w", errors.ErrAdapterError)
	}

	return SessionHandle{Handle: out.Handle, Link: out.Link}, nil
}

func (a *WebhookAdapter) Health(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return errors.Transient("platform unreachable: " + a.platform)
	}
	if resp.IsError() {
		return errors.Transient(fmt.Sprintf("platform %s unhealthy: %d", a.platform, resp.StatusCode()))
	}
	return nil
}
