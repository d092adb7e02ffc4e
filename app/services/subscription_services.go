package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shashiranjanraj/filebot/pkg/cache"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
)

// SubscriptionService enforces membership in the configured channels
// before files are delivered.
type SubscriptionService struct {
	bot      *telegram.Bot
	cache    *cache.Cache
	channels []telegram.Chat
	ttl      time.Duration
}

// NewSubscriptionService parses channels; unparsable entries are skipped
// with a warning.
func NewSubscriptionService(bot *telegram.Bot, c *cache.Cache, channels []string, ttl time.Duration) *SubscriptionService {
	s := &SubscriptionService{bot: bot, cache: c, ttl: ttl}
	for _, raw := range channels {
		chat, err := telegram.ParseChat(raw)
		if err != nil {
			logger.Warn("subscription: ignoring channel", "channel", raw, "error", err)
			continue
		}
		s.channels = append(s.channels, chat)
	}
	return s
}

func (s *SubscriptionService) Channels() []telegram.Chat { return s.channels }

// Missing returns the channels userID has not joined. A Telegram error
// counts the channel as missing so access is denied rather than granted.
func (s *SubscriptionService) Missing(ctx context.Context, userID int64) []telegram.Chat {
	var missing []telegram.Chat
	for _, ch := range s.channels {
		if !s.isMember(ctx, ch, userID) {
			missing = append(missing, ch)
		}
	}
	return missing
}

// Check wraps Missing: it returns ErrNotSubscribed together with the
// channels still to join, or nil when userID may receive files.
func (s *SubscriptionService) Check(ctx context.Context, userID int64) ([]telegram.Chat, error) {
	missing := s.Missing(ctx, userID)
	if len(missing) > 0 {
		return missing, fmt.Errorf("%w: user %d missing %d channel(s)", ErrNotSubscribed, userID, len(missing))
	}
	return nil, nil
}

func (s *SubscriptionService) isMember(ctx context.Context, ch telegram.Chat, userID int64) bool {
	key := fmt.Sprintf("sub:%s:%d", ch, userID)

	var member bool
	if s.cache.Get(ctx, key, &member) {
		return member
	}

	member, err := s.bot.IsMember(ch, userID)
	if err != nil {
		logger.WithCtx(ctx).Warn("subscription: membership check failed", "channel", ch.String(), "error", err)
		return false
	}

	// Only positive answers are cached so a user who just joined is let
	// through on the next try.
	if member {
		if err := s.cache.Set(ctx, key, true, s.ttl); err != nil {
			logger.WithCtx(ctx).Warn("subscription: cache write failed", "error", err)
		}
	}
	return member
}

// JoinKeyboard builds one join button per missing channel. Channels
// without a resolvable link are left out.
func (s *SubscriptionService) JoinKeyboard(ctx context.Context, missing []telegram.Chat) telegram.Keyboard {
	kb := make(telegram.Keyboard, 0, len(missing))
	for _, ch := range missing {
		url, err := s.bot.JoinURL(ch)
		if err != nil {
			logger.WithCtx(ctx).Warn("subscription: join link", "channel", ch.String(), "error", err)
			continue
		}
		kb = append(kb, telegram.Button{Text: "Join " + ch.String(), URL: url})
	}
	return kb
}
