// Package telegramtest provides an in-memory telegram.Client for tests.
package telegramtest

import (
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Fake records every outgoing call. Configure it before use; the exported
// maps and funcs must not be changed while calls are in flight.
type Fake struct {
	// Members maps "<chat>:<user>" to a chat member status. A missing
	// entry means "left".
	Members map[string]string
	// MemberErr is returned by GetChatMember when set.
	MemberErr error
	// SendErr, when set, decides the error for each Send call.
	SendErr func(c tgbotapi.Chattable) error
	// FileURLs maps file ids to download URLs.
	FileURLs map[string]string
	// InviteLinks maps numeric chat ids to invite links.
	InviteLinks map[int64]string

	updates  chan tgbotapi.Update
	stopOnce sync.Once

	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []Call
	nextID   int
}

// Call is one Request or MakeRequest invocation.
type Call struct {
	Method string
	Params tgbotapi.Params
}

func New() *Fake {
	return &Fake{
		Members:     map[string]string{},
		FileURLs:    map[string]string{},
		InviteLinks: map[int64]string{},
		updates:     make(chan tgbotapi.Update, 16),
	}
}

// MemberKey builds the Members key for a chat ("@name" or numeric id).
func MemberKey(chat string, userID int64) string {
	return chat + ":" + strconv.FormatInt(userID, 10)
}

func (f *Fake) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.SendErr != nil {
		if err := f.SendErr(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++

	msg := tgbotapi.Message{MessageID: f.nextID, Chat: &tgbotapi.Chat{}}
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		msg.Chat.ID = v.ChatID
		msg.Text = v.Text
	case tgbotapi.DocumentConfig:
		msg.Chat.ID = v.ChatID
		msg.Chat.UserName = v.ChannelUsername
		msg.Document = &tgbotapi.Document{FileID: fmt.Sprint(v.File)}
	}
	return msg, nil
}

func (f *Fake) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, Call{Method: methodOf(c)})
	f.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func methodOf(c tgbotapi.Chattable) string {
	switch c.(type) {
	case tgbotapi.DeleteWebhookConfig:
		return "deleteWebhook"
	default:
		return fmt.Sprintf("%T", c)
	}
}

func (f *Fake) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, Call{Method: endpoint, Params: params})
	f.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *Fake) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	if f.MemberErr != nil {
		return tgbotapi.ChatMember{}, f.MemberErr
	}
	chat := cfg.SuperGroupUsername
	if chat == "" {
		chat = strconv.FormatInt(cfg.ChatID, 10)
	}
	status, ok := f.Members[MemberKey(chat, cfg.UserID)]
	if !ok {
		status = "left"
	}
	return tgbotapi.ChatMember{Status: status}, nil
}

func (f *Fake) GetInviteLink(cfg tgbotapi.ChatInviteLinkConfig) (string, error) {
	link, ok := f.InviteLinks[cfg.ChatID]
	if !ok {
		return "", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	}
	return link, nil
}

func (f *Fake) GetFileDirectURL(fileID string) (string, error) {
	url, ok := f.FileURLs[fileID]
	if !ok {
		return "", &tgbotapi.Error{Code: 400, Message: "Bad Request: invalid file_id"}
	}
	return url, nil
}

func (f *Fake) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *Fake) StopReceivingUpdates() {
	f.stopOnce.Do(func() { close(f.updates) })
}

// Push delivers an update to GetUpdatesChan consumers.
func (f *Fake) Push(u tgbotapi.Update) { f.updates <- u }

// Sent returns a copy of every Chattable passed to Send.
func (f *Fake) Sent() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tgbotapi.Chattable, len(f.sent))
	copy(out, f.sent)
	return out
}

// Messages returns the text messages sent to chatID.
func (f *Fake) Messages(chatID int64) []tgbotapi.MessageConfig {
	var out []tgbotapi.MessageConfig
	for _, c := range f.Sent() {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Texts returns the text of every message sent to chatID.
func (f *Fake) Texts(chatID int64) []string {
	var out []string
	for _, m := range f.Messages(chatID) {
		out = append(out, m.Text)
	}
	return out
}

// Documents returns every document sent.
func (f *Fake) Documents() []tgbotapi.DocumentConfig {
	var out []tgbotapi.DocumentConfig
	for _, c := range f.Sent() {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

// Calls returns every Request and MakeRequest invocation.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.requests))
	copy(out, f.requests)
	return out
}
