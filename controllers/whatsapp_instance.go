package controllers

import (
	"errors"
	"net/http"
	"strings"

	"wabot/services"

	"github.com/gin-gonic/gin"
)

type connectReq struct {
	BotID string `json:"botId"`
}

// POST /api/whatsapp/connect
// Creates or reuses the bot's gateway instance and returns a QR to pair it.
func WhatsAppConnect(c *gin.Context) {
	svc := ServicesInstance(c)
	if svc == nil || svc.Lifecycle == nil {
		RespondError(c, "lifecycle not configured", http.StatusInternalServerError)
		return
	}

	var req connectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}

	res, err := svc.Lifecycle.Connect(c.Request.Context(), req.BotID)
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	RespondSuccess(c, res)
}

type disconnectReq struct {
	InstanceName string `json:"instanceName"`
}

// POST /api/whatsapp/disconnect
// Deletes the gateway session and resets the local row. Returns {success:true}.
func WhatsAppDisconnect(c *gin.Context) {
	svc := ServicesInstance(c)
	if svc == nil || svc.Lifecycle == nil {
		RespondError(c, "lifecycle not configured", http.StatusInternalServerError)
		return
	}

	var req disconnectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}

	if err := svc.Lifecycle.Disconnect(c.Request.Context(), req.InstanceName); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	RespondSuccess(c, gin.H{"success": true})
}

// GET /api/whatsapp/instances/:name
func GetWhatsAppInstance(c *gin.Context) {
	svc := ServicesInstance(c)
	if svc == nil || svc.Lifecycle == nil {
		RespondError(c, "lifecycle not configured", http.StatusInternalServerError)
		return
	}

	inst, err := svc.Lifecycle.Status(strings.TrimSpace(c.Param("name")))
	if err != nil {
		if errors.Is(err, services.ErrInstanceNotFound) {
			RespondError(c, err.Error(), http.StatusNotFound)
			return
		}
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, inst)
}

// GET /api/whatsapp/gateway/instances
// Lists what the gateway itself reports, for operators reconciling drift.
func GetGatewayInstances(c *gin.Context) {
	svc := ServicesInstance(c)
	if svc == nil || svc.Gateway == nil {
		RespondError(c, "gateway not configured", http.StatusInternalServerError)
		return
	}

	list, err := svc.Gateway.ListInstances(c.Request.Context())
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadGateway)
		return
	}
	RespondSuccess(c, gin.H{"instances": list})
}
