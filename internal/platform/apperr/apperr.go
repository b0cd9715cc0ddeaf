package apperr

import (
	"errors"
	"net/http"
)

// Taxonomía compartida por todos los módulos. Los servicios envuelven estos
// errores con fmt.Errorf("%w: detalle") y el borde HTTP los traduce con Status.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation error")
)

// Status devuelve el código HTTP para err. Errores fuera de la taxonomía => 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message devuelve el texto que es seguro mostrar al cliente.
// Los errores internos nunca exponen su detalle.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
