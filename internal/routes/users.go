package routes

import (
	"net/http"

	"github.com/gorilla/mux"
)

func UserProfileRoutes(api *mux.Router, deps Deps) {
	api.HandleFunc("/users/me", deps.Users.GetProfile).Methods(http.MethodGet)
}
