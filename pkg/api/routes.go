package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", s.HandleSearch)
	mux.HandleFunc("GET /api/view", s.HandleView)
	mux.HandleFunc("GET /api/view/ws", s.HandleViewWS)
	mux.HandleFunc("POST /api/scroll", s.HandleScroll)
	mux.HandleFunc("GET /api/preferences", s.HandleGetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.HandleUpdatePreferences)
	mux.HandleFunc("GET /api/stats", s.HandleStats)
	mux.HandleFunc("GET /health", s.HandleHealth)
}
