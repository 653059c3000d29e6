package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks whether the actor, acting under the given role in
	// the given shop, may perform action on object.
	Authorize(ctx context.Context, actor, role, shopID, object, action string) error
}

var (
	ErrInvalidActor = errors.New("invalid_actor")
	ErrInvalidShop  = errors.New("invalid_shop")
	ErrInvalidRole  = errors.New("invalid_role")
	ErrForbidden    = errors.New("forbidden")
)
