// Package handlers adapts HTTP requests to the application services.
package handlers

import (
	"errors"
	"net/http"

	"graphboard/application/session"
	"graphboard/pkg/auth"
	"graphboard/pkg/common"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/utils"
)

// decode parses the request body into req and validates its tags.
func decode(w http.ResponseWriter, r *http.Request, req interface{}) error {
	if err := common.ParseJSONBody(w, r, req, common.MaxBodyBytes); err != nil {
		return bodyError(err)
	}
	return utils.ValidateStruct(req)
}

// decodeLenient is decode for canvas payloads.
func decodeLenient(w http.ResponseWriter, r *http.Request, req interface{}) error {
	if err := common.ParseJSONBodyLenient(w, r, req, common.MaxBodyBytes); err != nil {
		return bodyError(err)
	}
	return utils.ValidateStruct(req)
}

// decodeOptional is decode for endpoints whose body may be omitted.
func decodeOptional(w http.ResponseWriter, r *http.Request, req interface{}) error {
	err := common.ParseJSONBody(w, r, req, common.MaxBodyBytes)
	if errors.Is(err, common.ErrEmptyBody) {
		return nil
	}
	if err != nil {
		return bodyError(err)
	}
	return utils.ValidateStruct(req)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, common.ErrEmptyBody):
		return pkgerrors.NewValidationError("request body is required")
	case errors.As(err, &tooLarge):
		return pkgerrors.NewValidationError("request body is too large")
	default:
		return pkgerrors.NewValidationError("Invalid request body: " + err.Error())
	}
}

// caller returns the identity the authentication middleware attached.
func caller(r *http.Request) (session.Identity, error) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		return session.Identity{}, pkgerrors.NewUnauthorizedError("authentication required")
	}
	return session.FromUserContext(user), nil
}
