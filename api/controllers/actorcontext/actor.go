package actorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/api/middleware"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

// Resolve turns the authenticated identity into the actor the order services act for.
func Resolve(r *http.Request) (orders.Actor, error) {
	ctx := r.Context()
	rawUser := middleware.UserIDFromContext(ctx)
	if rawUser == "" {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}

	role := enums.ActorRole(middleware.RoleFromContext(ctx))
	// system is reserved for background workers and never accepted from a token
	if !role.IsValid() || role == enums.ActorRoleSystem {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "unsupported role")
	}

	actor := orders.Actor{UserID: userID, Role: role}
	if actor.BusinessID, err = optionalID(middleware.BusinessIDFromContext(ctx), "business"); err != nil {
		return orders.Actor{}, err
	}
	if actor.DriverID, err = optionalID(middleware.DriverIDFromContext(ctx), "driver"); err != nil {
		return orders.Actor{}, err
	}

	switch role {
	case enums.ActorRoleRestaurant:
		if actor.BusinessID == nil {
			return orders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "business context required")
		}
	case enums.ActorRoleDriver:
		if actor.DriverID == nil {
			return orders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "driver context required")
		}
	}
	return actor, nil
}

func optionalID(raw, name string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid "+name+" id")
	}
	return &id, nil
}
