package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// recovered turns a panic in the handler into a 500 with the given error text.
func (s *Server) recovered(w http.ResponseWriter, what string) {
	if r := recover(); r != nil {
		s.log.Error().Interface("panic", r).Msg(what)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: what, Message: fmt.Sprint(r)})
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	defer s.recovered(w, "Failed to send email")

	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Body) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required fields"})
		return
	}

	writeJSON(w, http.StatusOK, s.svc.Submit(r.Context(), req.To, req.Subject, req.Body))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.svc.Status(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Email attempt not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleProcessQueue(w http.ResponseWriter, r *http.Request) {
	defer s.recovered(w, "Failed to process queue")

	n := s.svc.Drain(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"message": "Queue processed successfully", "processed": n})
}
