package controllers

import (
	"errors"
	"net/http"
	"strings"

	dbpkg "wabot/db"
	"wabot/store"

	"github.com/gin-gonic/gin"
)

type botConfigReq struct {
	WhatsAppNumber string `json:"whatsapp_number"`
}

// POST /api/bot-config
// Returns the active bot bound to a WhatsApp number, for the flow engine.
func GetBotConfig(c *gin.Context) {
	var req botConfigReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, "request body is empty or invalid json", http.StatusBadRequest)
		return
	}
	number := strings.TrimSpace(req.WhatsAppNumber)
	if number == "" {
		RespondError(c, "whatsapp_number is required", http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	bot, err := store.New(db).FindActiveBotByNumber(number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			RespondError(c, "bot not found", http.StatusNotFound)
			return
		}
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, bot)
}
