package handler

import (
	"net/http"

	"go-clinic-appointment/internal/delivery/http/middleware"
	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/pkg/response"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// maxCallbackBody bounds provider callback payloads
const maxCallbackBody = 64 << 10

func actorFromRequest(w http.ResponseWriter, r *http.Request) (entity.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Invalid token")
	}
	return actor, ok
}

func uuidVar(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid "+label+" ID", nil)
		return uuid.Nil, false
	}
	return id, true
}
