package routes

import (
	"net/http"

	"github.com/gorilla/mux"
)

func ChatRoutes(api *mux.Router, deps Deps) {
	h := deps.Chat

	api.HandleFunc("/teams/{id:[0-9]+}/chat/messages", h.GetMessages).Methods(http.MethodGet)
	api.HandleFunc("/teams/{id:[0-9]+}/chat/messages", h.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/teams/{id:[0-9]+}/chat/messages/{messageId:[0-9]+}", h.EditMessage).Methods(http.MethodPut)
	api.HandleFunc("/teams/{id:[0-9]+}/chat/messages/{messageId:[0-9]+}", h.DeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/teams/{id:[0-9]+}/chat/read", h.MarkAsRead).Methods(http.MethodPost)
	api.HandleFunc("/chat/unread", h.UnreadCounts).Methods(http.MethodGet)
}
