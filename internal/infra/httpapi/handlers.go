package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sendtime_notifier/internal/app"
	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/domain/notification"

	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

type handler struct {
	deps Deps
	now  func() time.Time
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) queueNotification(w http.ResponseWriter, r *http.Request) {
	var req app.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	res, err := h.deps.Notifications.QueueNotification(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if !res.Queued {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *handler) getNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	e, err := h.deps.Notifications.GetNotification(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryView(e))
}

func (h *handler) cancelNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Notifications.CancelNotification(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) notificationStats(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
			return
		}
		days = n
	}
	st, err := h.deps.Notifications.GetNotificationStats(r.Context(), chi.URLParam(r, "userID"), days)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsView(st))
}

type engagementRequest struct {
	NotificationID int64      `json:"notificationId"`
	Kind           string     `json:"kind"`
	OccurredAt     *time.Time `json:"occurredAt,omitempty"`
}

func (h *handler) recordEngagement(w http.ResponseWriter, r *http.Request) {
	var req engagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	kind, ok := engagement.ParseSignalKind(req.Kind)
	if !ok || req.NotificationID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_signal", "notificationId and a kind of open, click or convert are required")
		return
	}
	at := h.now()
	if req.OccurredAt != nil {
		at = *req.OccurredAt
	}
	_, changed, err := h.deps.Engagement.RecordSignal(r.Context(), req.NotificationID, kind, at, app.SourceAPI)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"recorded": changed})
}

func (h *handler) analyticsReport(w http.ResponseWriter, r *http.Request) {
	date, ok := h.queryDate(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	rep, err := h.deps.Analytics.Report(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type optimizationRequest struct {
	Date    string `json:"date"`
	Enabled *bool  `json:"enabled"`
}

func (h *handler) setOptimization(w http.ResponseWriter, r *http.Request) {
	var req optimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "enabled is required")
		return
	}
	date, ok := h.queryDate(w, req.Date)
	if !ok {
		return
	}
	if err := h.deps.Analytics.SetOptimization(r.Context(), date, *req.Enabled); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date.Format(dateLayout), "enabled": *req.Enabled})
}

// queryDate parses YYYY-MM-DD, defaulting to yesterday (the last aggregated day).
func (h *handler) queryDate(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return analytics.DateOf(h.now()).AddDate(0, 0, -1), true
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notification.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, notification.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case app.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		if h.deps.Logger != nil {
			h.deps.Logger.WithError(err).Error("Request failed")
		}
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
