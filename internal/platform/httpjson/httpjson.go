package httpjson

import (
	"encoding/json"
	"fmt"
	"net/http"

	"patient-access/internal/platform/apperr"

	"github.com/go-playground/validator/v10"
)

// writeJSON estaba duplicado en cada módulo; con seis módulos ya se justifica el helper común.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody es el cuerpo de error de toda la API.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Fail escribe {success:false, error} con el status que corresponde a err.
func Fail(w http.ResponseWriter, err error) {
	Write(w, apperr.Status(err), ErrorBody{Success: false, Error: apperr.Message(err)})
}

// FailStatus es para errores que nacen en el handler (p.ej. 401 sin claims).
func FailStatus(w http.ResponseWriter, status int, msg string) {
	Write(w, status, ErrorBody{Success: false, Error: msg})
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode lee el body JSON en dst y corre las reglas `validate:"..."`.
// Cualquier falla se devuelve como apperr.ErrValidation.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json", apperr.ErrValidation)
	}
	if err := validate.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", apperr.ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}
