package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/room"
)

const qrSize = 320

func (s *GameServer) Routes() http.Handler {
	r := mux.NewRouter()

	r.Use(s.corsMiddleware)

	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.monitor.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{code}", s.handleRoom).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/rooms/{code}/qr", s.handleRoomQR).Methods(http.MethodGet, http.MethodOptions)

	return r
}

// CORS middleware
func (s *GameServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		switch {
		case len(s.allowedOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(s.allowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"rooms":       s.roomManager.Count(),
		"connections": s.sessionManager.Count(),
	})
}

func (s *GameServer) handleRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	snap, err := rm.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRoomQR renders the invite link of a room as a PNG.
func (s *GameServer) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}

	png, err := qrcode.Encode(s.InviteURL(rm.ID), qrcode.Medium, qrSize)
	if err != nil {
		logger.Log.Errorf("room %s: qr generation failed: %v", rm.ID, err)
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// InviteURL is the link a player follows to join the room.
func (s *GameServer) InviteURL(code string) string {
	return strings.TrimRight(s.publicURL, "/") + "/?join=" + url.QueryEscape(code)
}

func (s *GameServer) lookupRoom(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	rm, err := s.roomManager.GetRoom(mux.Vars(r)["code"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return rm, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch models.KindOf(err) {
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindInvalid:
		status = http.StatusBadRequest
	case models.KindAuthorization:
		status = http.StatusUnauthorized
	}
	var gameErr *models.Error
	if !errors.As(err, &gameErr) {
		logger.Log.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": models.UserMessage(err)})
}
