package server

import (
	"encoding/json"
	"net/http"
)

// envelope 与后端一致的响应外壳 / envelope is the backend response wrapper
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, envelope{Status: "error", Message: message})
}
