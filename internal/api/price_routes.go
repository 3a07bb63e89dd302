package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kjannette/oracle-backend/internal/models"
	"github.com/kjannette/oracle-backend/internal/pricing"
)

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	networkStr := q.Get("network")
	if token == "" || networkStr == "" {
		writeError(w, http.StatusBadRequest, "token and network are required")
		return
	}

	network, err := models.ParseNetwork(networkStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ts *int64
	if v := q.Get("timestamp"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "timestamp must be a unix timestamp in seconds")
			return
		}
		ts = &n
	}

	pt, err := s.resolver.Resolve(r.Context(), token, network, ts)
	if err != nil {
		if errors.Is(err, pricing.ErrMissingToken) || errors.Is(err, pricing.ErrUnsupportedNetwork) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fmt.Printf("[API] Price resolution failed: %v\n", err)
		writeError(w, http.StatusBadGateway, "failed to fetch price")
		return
	}

	writeJSON(w, http.StatusOK, pt)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	networkStr := q.Get("network")
	if token == "" || networkStr == "" {
		writeError(w, http.StatusBadRequest, "token and network are required")
		return
	}

	network, err := models.ParseNetwork(networkStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "database not connected")
		return
	}

	points, err := s.history.History(r.Context(), token, network)
	if err != nil {
		fmt.Printf("[API] History fetch failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}
	if points == nil {
		points = []models.HistoryPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}
