// Package telegram wraps the Bot API client with the handful of calls the
// bot makes, and classifies the errors Telegram returns.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SecretHeader carries the webhook secret_token on every webhook call.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Client is the subset of *tgbotapi.BotAPI used by Bot. Tests substitute
// a fake.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetInviteLink(cfg tgbotapi.ChatInviteLinkConfig) (string, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ Client = (*tgbotapi.BotAPI)(nil)

// Bot sends messages and files on behalf of the configured bot account.
type Bot struct {
	api      Client
	username string
	download *http.Client
}

// New authenticates token against the Bot API (getMe). endpoint may be
// empty for the public API.
func New(token, endpoint string) (*Bot, error) {
	if token == "" {
		return nil, errors.New("telegram: TELEGRAM_TOKEN is not set")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 70 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate: %w", err)
	}
	return NewWithClient(api, api.Self.UserName, http.DefaultClient), nil
}

// NewWithClient builds a Bot around an existing client. download fetches
// file contents and may be nil.
func NewWithClient(api Client, username string, download *http.Client) *Bot {
	if download == nil {
		download = http.DefaultClient
	}
	return &Bot{api: api, username: username, download: download}
}

func (b *Bot) API() Client       { return b.api }
func (b *Bot) Username() string { return b.username }

// DeepLink opens the bot with /start payload.
func (b *Bot) DeepLink(payload string) string {
	return "https://t.me/" + b.username + "?start=" + payload
}

// ── Chats ─────────────────────────────────────────────────────────────────────

// Chat is either a numeric chat id or a public @username.
type Chat struct {
	ID       int64
	Username string
}

// ParseChat accepts "-1001234", "@channel" or "channel".
func ParseChat(s string) (Chat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Chat{}, errors.New("telegram: empty chat")
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Chat{ID: id}, nil
	}
	return Chat{Username: "@" + strings.TrimPrefix(s, "@")}, nil
}

func (c Chat) String() string {
	if c.Username != "" {
		return c.Username
	}
	return strconv.FormatInt(c.ID, 10)
}

// ── Sending ───────────────────────────────────────────────────────────────────

// Keyboard is a single column of URL buttons.
type Keyboard []Button

type Button struct {
	Text string
	URL  string
}

func (k Keyboard) markup() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(k))
	for _, b := range k {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// SendText sends a plain text message. kb may be nil.
func (b *Bot) SendText(chatID int64, text string, kb Keyboard) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if len(kb) > 0 {
		msg.ReplyMarkup = kb.markup()
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message to %d: %w", chatID, err)
	}
	return nil
}

// SendDocument re-sends an already uploaded file by id and returns the
// resulting message.
func (b *Bot) SendDocument(to Chat, fileID, caption string) (tgbotapi.Message, error) {
	doc := tgbotapi.DocumentConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: tgbotapi.BaseChat{ChatID: to.ID, ChannelUsername: to.Username},
			File:     tgbotapi.FileID(fileID),
		},
		Caption: caption,
	}
	m, err := b.api.Send(doc)
	if err != nil {
		return m, fmt.Errorf("telegram: send document to %s: %w", to, err)
	}
	return m, nil
}

// ── Membership ────────────────────────────────────────────────────────────────

// IsMember reports whether userID currently belongs to chat.
func (b *Bot) IsMember(chat Chat, userID int64) (bool, error) {
	m, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID:             chat.ID,
			SuperGroupUsername: chat.Username,
			UserID:             userID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("telegram: get chat member %s/%d: %w", chat, userID, err)
	}
	switch m.Status {
	case "creator", "administrator", "member":
		return true, nil
	case "restricted":
		return m.IsMember, nil
	default:
		return false, nil
	}
}

// JoinURL returns a link users can follow to join chat.
func (b *Bot) JoinURL(chat Chat) (string, error) {
	if chat.Username != "" {
		return "https://t.me/" + strings.TrimPrefix(chat.Username, "@"), nil
	}
	link, err := b.api.GetInviteLink(tgbotapi.ChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chat.ID},
	})
	if err != nil {
		return "", fmt.Errorf("telegram: invite link %s: %w", chat, err)
	}
	return link, nil
}

// ── Files ─────────────────────────────────────────────────────────────────────

// OpenFile starts downloading fileID. The body is tied to ctx, so
// cancelling ctx aborts the transfer.
func (b *Bot) OpenFile(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, 0, fmt.Errorf("telegram: resolve file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("telegram: download request: %w", err)
	}
	resp, err := b.download.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("telegram: download %s: unexpected status %d", fileID, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// ── Webhook ───────────────────────────────────────────────────────────────────

// SetWebhook registers url. The secret is echoed back by Telegram in
// SecretHeader on every call.
func (b *Bot) SetWebhook(url, secret string, dropPending bool) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params.AddBool("drop_pending_updates", dropPending)
	if err := params.AddInterface("allowed_updates", []string{"message"}); err != nil {
		return err
	}

	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	return nil
}

func (b *Bot) DeleteWebhook(dropPending bool) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending}); err != nil {
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	return nil
}

// Updates starts long polling. Stop with StopUpdates.
func (b *Bot) Updates(timeout int) tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = timeout
	cfg.AllowedUpdates = []string{"message"}
	return b.api.GetUpdatesChan(cfg)
}

func (b *Bot) StopUpdates() { b.api.StopReceivingUpdates() }

// ── Errors ────────────────────────────────────────────────────────────────────

// IsBlocked reports a 403: the user blocked the bot or deleted their account.
func IsBlocked(err error) bool {
	var te *tgbotapi.Error
	return errors.As(err, &te) && te.Code == http.StatusForbidden
}

// RetryAfter reports a 429 and how long Telegram asked us to wait.
func RetryAfter(err error) (time.Duration, bool) {
	var te *tgbotapi.Error
	if !errors.As(err, &te) || te.Code != http.StatusTooManyRequests {
		return 0, false
	}
	wait := time.Duration(te.RetryAfter) * time.Second
	if wait <= 0 {
		wait = time.Second
	}
	return wait, true
}
