package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ezekaj/auto-scouter-sub000/pkg/scheduler"
	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		http.Error(w, "scraping not enabled on this server", http.StatusServiceUnavailable)
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		http.Error(w, "source query parameter is required", http.StatusBadRequest)
		return
	}

	id, err := s.Scheduler.Trigger(r.Context(), source)
	switch {
	case errors.Is(err, scheduler.ErrUnknownSource):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrSessionRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int64{"session_id": id})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	sessions, err := s.DB.ListSessions(r.Context(), q.Get("source"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(sessions)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	session, err := s.DB.GetSession(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(session)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	minPrice, _ := strconv.Atoi(q.Get("min_price"))
	maxPrice, _ := strconv.Atoi(q.Get("max_price"))
	opts := storage.ListListingsOptions{
		Source:     q.Get("source"),
		Make:       q.Get("make"),
		Model:      q.Get("model"),
		ActiveOnly: q.Get("include_inactive") != "true",
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		Limit:      limit,
		Offset:     offset,
	}

	listings, err := s.DB.ListListings(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(listings)
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	listing, err := s.DB.GetListing(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(listing)
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.DB.GetListing(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	points, err := s.DB.ListPriceHistory(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(points)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	alerts, err := s.DB.ListAlerts(r.Context(), activeOnly)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(alerts)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var alert storage.Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.DB.CreateAlert(r.Context(), &alert)
	if err != nil {
		http.Error(w, err.Error(), alertErrStatus(err))
		return
	}
	alert.ID = id
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(alert)
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var alert storage.Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	alert.ID = id

	if err := s.DB.UpdateAlert(r.Context(), &alert); err != nil {
		http.Error(w, err.Error(), alertErrStatus(err))
		return
	}
	json.NewEncoder(w).Encode(alert)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.DB.DeleteAlert(r.Context(), id); err != nil {
		http.Error(w, err.Error(), alertErrStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ToggleRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleToggleAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.DB.SetAlertActive(r.Context(), id, req.Active); err != nil {
		http.Error(w, err.Error(), alertErrStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	alertID, _ := strconv.ParseInt(q.Get("alert_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	opts := storage.ListNotificationsOptions{
		UnreadOnly: q.Get("unread") == "true",
		AlertID:    alertID,
		Limit:      limit,
	}

	notifications, err := s.DB.ListNotifications(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(notifications)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.DB.MarkNotificationRead(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "notification not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.DB.MarkAllNotificationsRead(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]int64{"marked_read": n})
}

type StatsResponse struct {
	Listings []storage.SourceStats   `json:"listings"`
	Sources  []scheduler.SourceState `json:"sources,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := StatsResponse{Listings: stats}
	if s.Scheduler != nil {
		resp.Sources = s.Scheduler.Snapshot()
	}
	json.NewEncoder(w).Encode(resp)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func alertErrStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDegenerateAlert):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
