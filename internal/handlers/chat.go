package handlers

import (
	"net/http"

	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/models"
	"github.com/nikhil/teamhub/internal/service/chat"
)

type sendMessageRequest struct {
	Body    string             `json:"body"`
	Type    models.MessageType `json:"type"`
	ReplyTo *int64             `json:"reply_to"`
}

type editMessageRequest struct {
	Body string `json:"body"`
}

type markReadRequest struct {
	MessageIDs []int64 `json:"message_ids"`
}

// ChatHandler serves team chat endpoints.
type ChatHandler struct {
	Chat *chat.Tracker
	Log  *logger.Logger
}

// GetMessages returns a window of the team's chat with read flags.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", chat.DefaultLimit)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "get_messages", "team_id", teamID)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "get_messages", "team_id", teamID)
		return
	}

	page, err := h.Chat.GetByTeamID(r.Context(), teamID, limit, offset, user.UserID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "get_messages", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

// SendMessage posts a message to the team chat.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeBody(w, r, h.Log, &req) {
		return
	}

	msg, err := h.Chat.Send(r.Context(), teamID, user.UserID, req.Body, req.Type, req.ReplyTo)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "send_message", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusCreated, msg)
}

// EditMessage replaces the body of the caller's message.
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "messageId")
	if !ok {
		return
	}
	var req editMessageRequest
	if !decodeBody(w, r, h.Log, &req) {
		return
	}

	msg, err := h.Chat.Edit(r.Context(), teamID, messageID, user.UserID, req.Body)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "edit_message", "team_id", teamID, "message_id", messageID)
		return
	}
	respondWithJSON(w, http.StatusOK, msg)
}

// DeleteMessage removes a message.
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "messageId")
	if !ok {
		return
	}

	if err := h.Chat.Delete(r.Context(), teamID, messageID, user.UserID); err != nil {
		respondWithAppError(w, r, h.Log, err, "delete_message", "team_id", teamID, "message_id", messageID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
}

// MarkAsRead records read receipts and returns the remaining unread count.
func (h *ChatHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req markReadRequest
	if !decodeBody(w, r, h.Log, &req) {
		return
	}

	marked, err := h.Chat.MarkAsRead(r.Context(), teamID, user.UserID, req.MessageIDs)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "mark_read", "team_id", teamID)
		return
	}
	unread, err := h.Chat.GetUnreadCount(r.Context(), teamID, user.UserID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "mark_read", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"marked":       marked,
		"unread_count": unread,
	})
}

// UnreadCounts returns the caller's unread count per team.
func (h *ChatHandler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	counts, err := h.Chat.UnreadByTeam(r.Context(), user.UserID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "unread_counts")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"unread": counts})
}
