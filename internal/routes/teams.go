package routes

import (
	"net/http"

	"github.com/gorilla/mux"
)

func TeamRoutes(api *mux.Router, deps Deps) {
	h := deps.Teams

	api.HandleFunc("/teams", h.CreateTeam).Methods(http.MethodPost)
	api.HandleFunc("/teams", h.GetUserTeams).Methods(http.MethodGet)
	api.HandleFunc("/teams/{id:[0-9]+}", h.GetTeam).Methods(http.MethodGet)
	api.HandleFunc("/teams/{id:[0-9]+}", h.UpdateTeam).Methods(http.MethodPut)
	api.HandleFunc("/teams/{id:[0-9]+}", h.DeleteTeam).Methods(http.MethodDelete)

	api.HandleFunc("/teams/{id:[0-9]+}/members", h.GetMembers).Methods(http.MethodGet)
	api.HandleFunc("/teams/{id:[0-9]+}/members", h.AddMember).Methods(http.MethodPost)
	api.HandleFunc("/teams/{id:[0-9]+}/members/{memberId:[0-9]+}", h.RemoveMember).Methods(http.MethodDelete)
	api.HandleFunc("/teams/{id:[0-9]+}/members/{memberId:[0-9]+}", h.UpdateMemberRole).Methods(http.MethodPut)
}
