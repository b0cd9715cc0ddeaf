package middleware

import (
	"net/http"

	"patient-access/internal/platform/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const HeaderRequestID = "X-Request-ID"

// RequestLogger va después de chi/middleware.RequestID: devuelve el id en la respuesta
// y deja en el contexto un logger con request_id para servicios y handlers.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := chimw.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set(HeaderRequestID, reqID)
			}

			l := log.With(map[string]any{"request_id": reqID})
			ctx := logger.IntoContext(r.Context(), l)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			l.Debug("request served", map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": ww.Status(),
				"bytes":  ww.BytesWritten(),
			})
		})
	}
}
