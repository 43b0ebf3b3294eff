package controllers

import (
	"errors"
	"net/http"
	"strings"

	dbpkg "wabot/db"
	"wabot/models"
	"wabot/store"

	"github.com/gin-gonic/gin"
)

func validConversationStatus(s string) bool {
	switch s {
	case "", models.CONVERSATION_STATUS_ACTIVE, models.CONVERSATION_STATUS_ARCHIVED, models.CONVERSATION_STATUS_CLOSED:
		return true
	}
	return false
}

// GET /api/whatsapp/instances/:name/conversations?status=
func GetInstanceConversations(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	if !validConversationStatus(status) {
		RespondError(c, "invalid status", http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}
	st := store.New(db)

	inst, err := st.FindInstanceByName(strings.TrimSpace(c.Param("name")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			RespondError(c, "instance not found", http.StatusNotFound)
			return
		}
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	convs, err := st.ListConversations(inst.ID, status)
	if err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, gin.H{"conversations": convs})
}

// GET /api/whatsapp/conversations/:id/messages
func GetConversationMessages(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}
	st := store.New(db)

	if _, err := st.FindConversation(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			RespondError(c, "conversation not found", http.StatusNotFound)
			return
		}
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	msgs, err := st.ListMessages(id)
	if err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}
	RespondSuccess(c, gin.H{"messages": msgs})
}
