package handler

import "net/http"

// HandleIndex → GET /
func HandleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, success("Welcome to ConsultHub API", nil))
}

// HandleStatus → GET /status. Liveness only; it never touches the stores.
func HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Payload{Status: statusSuccess})
}
