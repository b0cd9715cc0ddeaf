package notifications

import (
	"net/http"
	"strconv"
	"time"

	"patient-access/internal/middleware"
	"patient-access/internal/platform/httpjson"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/me/notifications", listNotificationsHandler(svc))
	r.Post("/me/notifications/{notificationID}/read", markReadHandler(svc))
}

type notificationResponse struct {
	ID             string     `json:"id"`
	Type           Type       `json:"type"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	GrantID        string     `json:"grantId,omitempty"`
	PatientID      string     `json:"patientId,omitempty"`
	OrganizationID string     `json:"organizationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// listNotificationsHandler godoc
// @Summary Mis notificaciones
// @Description Bandeja de la cuenta autenticada: solicitudes de acceso (paciente) y decisiones (practitioner).
// @Tags notifications
// @Produce json
// @Param unread query bool false "Solo no leídas"
// @Success 200 {array} notificationResponse
// @Failure 401 {object} httpjson.ErrorBody "unauthorized"
// @Router /me/notifications [get]
func listNotificationsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

		items, err := svc.ListForUser(r.Context(), claims.UserID, unread)
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		out := make([]notificationResponse, 0, len(items))
		for _, n := range items {
			out = append(out, toNotificationResponse(n))
		}
		httpjson.Write(w, http.StatusOK, out)
	}
}

func markReadHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireClaims(w, r)
		if !ok {
			return
		}
		n, err := svc.MarkRead(r.Context(), claims.UserID, chi.URLParam(r, "notificationID"))
		if err != nil {
			httpjson.Fail(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toNotificationResponse(n))
	}
}

func toNotificationResponse(n Notification) notificationResponse {
	return notificationResponse{
		ID:             n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		GrantID:        n.GrantID,
		PatientID:      n.PatientID,
		OrganizationID: n.OrganizationID,
		CreatedAt:      n.CreatedAt,
		ReadAt:         n.ReadAt,
	}
}
