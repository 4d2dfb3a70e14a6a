package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kairoshq/kairos/internal/adapter"
	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/daemon"
)

// AdaptersComponent constructs the platform adapters the config enables and
// hands them to the core. Presence and session capabilities are tracked
// separately because not every platform has both.
type AdaptersComponent struct {
	cfg *config.AdaptersConfig

	mu       sync.RWMutex
	presence []adapter.PresenceAdapter
	sessions []adapter.SessionAdapter
	static   *adapter.StaticAdapter
	ready    bool
}

func NewAdaptersComponent(cfg *config.AdaptersConfig) *AdaptersComponent {
	return &AdaptersComponent{cfg: cfg}
}

func (a *AdaptersComponent) Name() string {
	return "Adapters"
}

func (a *AdaptersComponent) Dependencies() []string {
	return []string{}
}

func (a *AdaptersComponent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.Slack.Enabled {
		if a.cfg.Slack.BotToken == "" {
			return fmt.Errorf("slack adapter enabled without bot token")
		}
		slack := adapter.NewSlackAdapter(a.cfg.Slack.BotToken)
		a.presence = append(a.presence, slack)
		a.sessions = append(a.sessions, slack)
		slog.Info("Slack adapter enabled")
	}

	if a.cfg.Telegram.Enabled {
		if a.cfg.Telegram.BotToken == "" {
			return fmt.Errorf("telegram adapter enabled without bot token")
		}
		telegram, err := adapter.NewTelegramAdapter(a.cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("init telegram adapter: %w", err)
		}
		a.sessions = append(a.sessions, telegram)
		slog.Info("Telegram adapter enabled")
	}

	for _, hook := range a.cfg.Webhooks {
		if hook.Platform == "" || hook.BaseURL == "" {
			return fmt.Errorf("webhook adapter requires platform and base_url")
		}
		timeout, err := config.DurationOrDefault(hook.Timeout, config.DefaultPresenceAdapterTimeout)
		if err != nil {
			return fmt.Errorf("parse webhook timeout for %s: %w", hook.Platform, err)
		}
		wh := adapter.NewWebhookAdapter(hook.Platform, hook.BaseURL, hook.AuthToken, timeout)
		a.presence = append(a.presence, wh)
		a.sessions = append(a.sessions, wh)
		slog.Info("Webhook adapter enabled", "platform", hook.Platform)
	}

	if a.cfg.Static.Enabled {
		// Event handler is wired by the core component once the
		// orchestrator exists.
		a.static = adapter.NewStaticAdapter("static", nil)
		a.presence = append(a.presence, a.static)
		a.sessions = append(a.sessions, a.static)
		slog.Info("Static adapter enabled")
	}

	a.ready = true
	slog.Info("Adapters initialized",
		"presence", len(a.presence),
		"sessions", len(a.sessions))
	return nil
}

func (a *AdaptersComponent) Start(ctx context.Context) error {
	return nil
}

func (a *AdaptersComponent) Stop(ctx context.Context) error {
	return nil
}

func (a *AdaptersComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.ready {
		return &daemon.ComponentHealth{
			Name:    a.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	for _, s := range a.sessions {
		if err := s.Health(ctx); err != nil {
			return &daemon.ComponentHealth{
				Name:    a.Name(),
				Healthy: false,
				Error:   fmt.Errorf("adapter %s unhealthy: %w", s.Platform(), err),
			}, nil
		}
	}

	return &daemon.ComponentHealth{
		Name:    a.Name(),
		Healthy: true,
	}, nil
}

func (a *AdaptersComponent) PresenceAdapters() []adapter.PresenceAdapter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.presence
}

func (a *AdaptersComponent) SessionAdapters() []adapter.SessionAdapter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessions
}

func (a *AdaptersComponent) Static() *adapter.StaticAdapter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.static
}
