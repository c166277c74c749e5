package server

import (
	"log"
	"net/http"

	"github.com/ezekaj/auto-scouter-sub000/pkg/scheduler"
	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

type Server struct {
	DB        *storage.DB
	Scheduler *scheduler.Scheduler
	Events    *Broadcaster
	Username  string
	Password  string
}

func New(db *storage.DB, sched *scheduler.Scheduler, events *Broadcaster, user, pass string) *Server {
	return &Server{
		DB:        db,
		Scheduler: sched,
		Events:    events,
		Username:  user,
		Password:  pass,
	}
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	// Scraping
	mux.HandleFunc("POST /api/scrape", s.basicAuth(s.handleScrape))
	mux.HandleFunc("GET /api/sessions", s.basicAuth(s.handleSessions))
	mux.HandleFunc("GET /api/sessions/{id}", s.basicAuth(s.handleSession))

	// Listings
	mux.HandleFunc("GET /api/listings", s.basicAuth(s.handleListings))
	mux.HandleFunc("GET /api/listings/{id}", s.basicAuth(s.handleListing))
	mux.HandleFunc("GET /api/listings/{id}/prices", s.basicAuth(s.handlePriceHistory))

	// Alerts
	mux.HandleFunc("GET /api/alerts", s.basicAuth(s.handleListAlerts))
	mux.HandleFunc("POST /api/alerts", s.basicAuth(s.handleCreateAlert))
	mux.HandleFunc("PUT /api/alerts/{id}", s.basicAuth(s.handleUpdateAlert))
	mux.HandleFunc("DELETE /api/alerts/{id}", s.basicAuth(s.handleDeleteAlert))
	mux.HandleFunc("POST /api/alerts/{id}/toggle", s.basicAuth(s.handleToggleAlert))

	// Notifications
	mux.HandleFunc("GET /api/notifications", s.basicAuth(s.handleNotifications))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.basicAuth(s.handleMarkRead))
	mux.HandleFunc("POST /api/notifications/read-all", s.basicAuth(s.handleMarkAllRead))

	// Misc
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	mux.HandleFunc("GET /api/events", s.basicAuth(s.handleEvents))

	log.Printf("Starting server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
