package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"wabot/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// webhookTokenOK accepts the shared token as ?token= or as the apikey header.
func webhookTokenOK(c *gin.Context, expected string) bool {
	if expected == "" {
		return true
	}
	got := strings.TrimSpace(c.Query("token"))
	if got == "" {
		got = strings.TrimSpace(c.GetHeader("apikey"))
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// POST /api/whatsapp/webhook
// Receives Evolution API callbacks. Any parsable delivery is acknowledged with {success:true}.
func WhatsAppWebhook(c *gin.Context) {
	svc := ServicesInstance(c)
	if svc == nil || svc.Webhook == nil {
		RespondError(c, "webhook not configured", http.StatusInternalServerError)
		return
	}

	if !webhookTokenOK(c, svc.WebhookToken) {
		RespondError(c, "forbidden", http.StatusForbidden)
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}

	var ev services.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}

	zap.L().Debug("webhook received", zap.String("event", ev.Event), zap.String("instance", ev.Instance))
	svc.Webhook.Dispatch(c.Request.Context(), ev)

	RespondSuccess(c, gin.H{"success": true})
}
