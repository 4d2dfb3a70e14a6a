package adapter

import (
	"context"
	"fmt"
	"os"

	"github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"

	"github.com/slack-go/slack"
)

// SlackAdapter reads presence from the Slack presence API and opens group
// conversations as meeting sessions.
type SlackAdapter struct {
	botToken string
	client   *slack.Client
}

func NewSlackAdapter(botToken string) *SlackAdapter {
	if botToken == "" {
		botToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	return &SlackAdapter{
		botToken: botToken,
		client:   slack.New(botToken),
	}
}

func (s *SlackAdapter) Platform() string {
	return "slack"
}

func (s *SlackAdapter) FetchPresence(ctx context.Context, platformUserID string) (model.PresenceStatus, float64, error) {
	presence, err := s.client.GetUserPresenceContext(ctx, platformUserID)
	if err != nil {
		return model.PresenceUnknown, 0.0, errors.MapAdapterError(err)
	}

	// Slack reports only active/away; the signal is strong for active and
	// weaker for away (auto-away after 10 minutes).
	switch presence.Presence {
	case "active":
		return model.PresenceOnline, 0.9, nil
	case "away":
		return model.PresenceIdle, 0.6, nil
	default:
		return model.PresenceUnknown, 0.0, nil
	}
}

func (s *SlackAdapter) CreateSession(ctx context.Context, participants []string, meta SessionMetadata) (SessionHandle, error) {
	channel, _, _, err := s.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: participants,
	})
	if err != nil {
		return SessionHandle{}, errors.MapAdapterError(err)
	}

	if meta.Purpose != "" {
		if _, _, err := s.client.PostMessageContext(ctx, channel.ID, slack.MsgOptionText(meta.Purpose, false)); err != nil {
			return SessionHandle{}, errors.MapAdapterError(err)
		}
	}

	return SessionHandle{
		Handle: channel.ID,
		Link:   fmt.Sprintf("https://slack.com/app_redirect?channel=%s", channel.ID),
	}, nil
}

func (s *SlackAdapter) Health(ctx context.Context) error {
	if s.client == nil {
		return errors.Transient("slack client not initialized")
	}

	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return errors.Transient("slack connection failed")
	}

	return nil
}
