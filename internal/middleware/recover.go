package middleware

import (
	"net/http"
	"runtime/debug"

	"patient-access/internal/platform/httpjson"
	"patient-access/internal/platform/logger"
)

// Recover reemplaza a chi/middleware.Recoverer: loguea el panic con el logger del request
// y responde con el mismo cuerpo de error que el resto de la API.
func Recover(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context(), log).Error("panic recovered", map[string]any{
					"panic":  rec,
					"method": r.Method,
					"path":   r.URL.Path,
					"stack":  string(debug.Stack()),
				})
				httpjson.FailStatus(w, http.StatusInternalServerError, "internal error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
