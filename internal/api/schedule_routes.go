package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kjannette/oracle-backend/internal/models"
)

type scheduleRequest struct {
	Token   string `json:"token"`
	Network string `json:"network"`
}

type scheduleResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" || req.Network == "" {
		writeError(w, http.StatusBadRequest, "token and network are required")
		return
	}

	network, err := models.ParseNetwork(req.Network)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.scheduler.Schedule(r.Context(), req.Token, network)
	if err != nil {
		fmt.Printf("[API] Schedule failed: %v\n", err)
		writeError(w, http.StatusBadGateway, "failed to schedule historical price fetching")
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse{
		Message: "Historical price fetching scheduled",
		JobID:   jobID,
	})
}
