// Bot webhook HTTP handler.
//
// This file handles the inbound Telegram webhook. It is pure glue: a /start
// command gets a greeting reply pointing at the mini app; everything else is
// acknowledged without action. The webhook never touches pool state.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-donation-backend/internal/http/middleware"
)

// webhookUpdate is the subset of the Telegram update payload the greeting
// flow needs. Unknown fields are ignored.
type webhookUpdate struct {
	Message *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			FirstName string `json:"first_name"`
		} `json:"from"`
	} `json:"message"`
}

// Webhook godoc
// @ID          botWebhook
// @Summary     Telegram bot webhook
// @Description Replies to /start with a greeting pointing at the mini app. All other updates are acknowledged and dropped.
// @Tags        Bot
// @Accept      json
// @Produce     json
//
// @Success     200  {object}  map[string]bool
// @Router      /webhook [post]
func (h *Handlers) Webhook(c *gin.Context) {
	var upd webhookUpdate
	// Telegram retries on non-2xx, so malformed payloads are acknowledged
	// rather than rejected.
	if err := c.ShouldBindJSON(&upd); err != nil || upd.Message == nil || upd.Message.Text != "/start" {
		ok(c, http.StatusOK, gin.H{"ok": true})
		return
	}

	name := upd.Message.From.FirstName
	if name == "" {
		name = "friend"
	}
	greeting := fmt.Sprintf("Hi %s! Tap 'Open App' button below to open the mini app and be able to donate.", name)

	if h.greeter != nil {
		if err := h.greeter.SendMessage(c.Request.Context(), upd.Message.Chat.ID, greeting); err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Int64("chat_id", upd.Message.Chat.ID).Msg("webhook greeting failed")
		}
	}

	ok(c, http.StatusOK, gin.H{"ok": true})
}
