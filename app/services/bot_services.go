package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/app/repositories"
	"github.com/shashiranjanraj/filebot/pkg/cache"
	"github.com/shashiranjanraj/filebot/pkg/event"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/metrics"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
)

// Replies sent to users.
const (
	msgWelcome         = "Hello %s! Welcome to the bot."
	msgNoUpload        = "You do not have permission to upload files."
	msgNoBroadcast     = "You do not have permission to broadcast messages."
	msgUploaded        = "File uploaded successfully! Here's the link: %s\nShare in Telegram: %s"
	msgFileNotFound    = "File not found."
	msgJoinFirst       = "Please join the channels below, then open the link again."
	msgBroadcastUsage  = "Usage: /broadcast <message>"
	msgBroadcastQueued = "Broadcast %s queued."
	msgStats           = "Total Users: %d\nTotal Files Uploaded: %d"
	msgUnknownCommand  = "Unknown command. Send /help to see what I can do."
	msgTryAgain        = "Something went wrong, please try again later."
	msgHelp            = "Commands:\n/start - register with the bot\n/stats - show totals\n/help - this message"
	msgAdminHelp       = "\n\nAdmin:\nsend a document - store it and get a permanent link\n/broadcast <message> - message every user"
)

const updateDedupTTL = 24 * time.Hour

// BotService turns Telegram updates into replies.
type BotService struct {
	bot        *telegram.Bot
	users      UserStore
	files      *FileService
	broadcasts *BroadcastService
	stats      *StatsService
	subs       *SubscriptionService
	admins     Admins
	cache      *cache.Cache
	events     *event.Bus
}

func NewBotService(bot *telegram.Bot, users UserStore, files *FileService, broadcasts *BroadcastService,
	stats *StatsService, subs *SubscriptionService, admins Admins, c *cache.Cache, events *event.Bus) *BotService {
	return &BotService{
		bot:        bot,
		users:      users,
		files:      files,
		broadcasts: broadcasts,
		stats:      stats,
		subs:       subs,
		admins:     admins,
		cache:      c,
		events:     events,
	}
}

// HandleUpdate processes one update. Telegram redelivers updates that
// were not acknowledged, so ids already seen are skipped.
func (s *BotService) HandleUpdate(ctx context.Context, u tgbotapi.Update) error {
	fresh, err := s.cache.SetNX(ctx, "update:"+strconv.Itoa(u.UpdateID), updateDedupTTL)
	if err != nil {
		logger.WithCtx(ctx).Warn("bot: dedup unavailable", "update_id", u.UpdateID, "error", err)
		fresh = true
	}
	if !fresh {
		metrics.UpdatesTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	msg := u.Message
	if msg == nil || msg.From == nil {
		metrics.UpdatesTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	log := logger.WithCtx(ctx).With("update_id", u.UpdateID, "user_id", msg.From.ID)
	ctx = logger.InjectLogger(ctx, log)

	switch {
	case msg.Document != nil:
		metrics.UpdatesTotal.WithLabelValues("document").Inc()
		return s.handleDocument(ctx, msg)
	case msg.IsCommand():
		metrics.UpdatesTotal.WithLabelValues("command").Inc()
		return s.handleCommand(ctx, msg)
	default:
		metrics.UpdatesTotal.WithLabelValues("text").Inc()
		return nil
	}
}

func (s *BotService) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return s.start(ctx, msg)
	case "broadcast":
		return s.broadcast(ctx, msg)
	case "stats":
		return s.viewStats(ctx, msg)
	case "help":
		text := msgHelp
		if s.admins.Contains(msg.From.ID) {
			text += msgAdminHelp
		}
		return s.reply(msg, text)
	default:
		return s.reply(msg, msgUnknownCommand)
	}
}

// start registers the user and, when the deep link carries a file id,
// delivers that file.
func (s *BotService) start(ctx context.Context, msg *tgbotapi.Message) error {
	from := msg.From
	created, err := s.users.Upsert(ctx, models.User{
		UserID:    from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastSeen:  time.Now().UTC(),
	})
	if err != nil {
		_ = s.reply(msg, msgTryAgain)
		return err
	}
	if created {
		s.events.Fire(event.UserRegistered, map[string]any{"user_id": from.ID, "username": from.UserName})
	}

	payload := strings.TrimSpace(msg.CommandArguments())
	if payload == "" {
		return s.reply(msg, fmt.Sprintf(msgWelcome, from.FirstName))
	}
	return s.sendFile(ctx, msg, payload)
}

func (s *BotService) sendFile(ctx context.Context, msg *tgbotapi.Message, id string) error {
	f, err := s.files.Find(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return s.reply(msg, msgFileNotFound)
	}
	if err != nil {
		_ = s.reply(msg, msgTryAgain)
		return err
	}

	if !s.admins.Contains(msg.From.ID) {
		if missing, err := s.subs.Check(ctx, msg.From.ID); errors.Is(err, ErrNotSubscribed) {
			return s.bot.SendText(msg.Chat.ID, msgJoinFirst, s.subs.JoinKeyboard(ctx, missing))
		}
	}

	if err := s.files.Deliver(ctx, msg.Chat.ID, f); err != nil {
		_ = s.reply(msg, msgTryAgain)
		return err
	}
	logger.WithCtx(ctx).Info("bot: file delivered", "file_unique_id", f.FileUniqueID)
	return nil
}

func (s *BotService) handleDocument(ctx context.Context, msg *tgbotapi.Message) error {
	if err := s.admins.Authorize(msg.From.ID); errors.Is(err, ErrForbidden) {
		return s.reply(msg, msgNoUpload)
	}

	f, err := s.files.Store(ctx, msg.From.ID, msg.Document)
	if err != nil {
		_ = s.reply(msg, msgTryAgain)
		return err
	}
	logger.WithCtx(ctx).Info("bot: file stored", "file_unique_id", f.FileUniqueID, "file_name", f.FileName)
	return s.reply(msg, fmt.Sprintf(msgUploaded, s.files.Link(f), s.bot.DeepLink(f.FileUniqueID)))
}

func (s *BotService) broadcast(ctx context.Context, msg *tgbotapi.Message) error {
	if err := s.admins.Authorize(msg.From.ID); errors.Is(err, ErrForbidden) {
		return s.reply(msg, msgNoBroadcast)
	}

	b, err := s.broadcasts.Create(ctx, msg.From.ID, msg.CommandArguments())
	if errors.Is(err, ErrEmptyBroadcast) {
		return s.reply(msg, msgBroadcastUsage)
	}
	if err != nil {
		_ = s.reply(msg, msgTryAgain)
		return err
	}
	return s.reply(msg, fmt.Sprintf(msgBroadcastQueued, b.ID))
}

func (s *BotService) viewStats(ctx context.Context, msg *tgbotapi.Message) error {
	st, err := s.stats.Stats(ctx)
	if err != nil {
		_ = s.reply(msg, msgTryAgain)
		return err
	}
	return s.reply(msg, fmt.Sprintf(msgStats, st.Users, st.Files))
}

func (s *BotService) reply(msg *tgbotapi.Message, text string) error {
	return s.bot.SendText(msg.Chat.ID, text, nil)
}
