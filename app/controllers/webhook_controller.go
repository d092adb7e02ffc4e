package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/response"
)

// maxUpdateBytes bounds a single webhook payload.
const maxUpdateBytes = 1 << 20

// UpdateHandler processes one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update) error
}

type WebhookController struct {
	bot UpdateHandler
}

func NewWebhookController(bot UpdateHandler) *WebhookController {
	return &WebhookController{bot: bot}
}

// Handle receives an update pushed by Telegram. Anything other than a 2xx
// makes Telegram redeliver, so processing failures are logged and still
// acknowledged; the user has already been told to try again.
func (c *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	var u tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&u); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid update")
		return
	}

	if err := c.bot.HandleUpdate(r.Context(), u); err != nil {
		logger.WithCtx(r.Context()).Error("webhook: update failed", "update_id", u.UpdateID, "error", err)
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
