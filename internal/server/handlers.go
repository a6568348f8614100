package server

import (
	"encoding/json"
	"net/http"

	"safetyqa/internal/domain"
)

type askBody struct {
	Q    *string `json:"q"`
	K    int     `json:"k"`
	Mode string  `json:"mode"`
}

type healthBody struct {
	OK        bool   `json:"ok"`
	Chunks    int    `json:"chunks"`
	IndexSize int    `json:"index_size"`
	Embedder  string `json:"embedder"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var body askBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Q == nil {
		writeError(w, http.StatusBadRequest, "field q is required")
		return
	}

	resp, err := s.backend.Ask(r.Context(), domain.AskRequest{Q: *body.Q, K: body.K, Mode: body.Mode})
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID(r)).Msg("Ask failed")
		writeError(w, http.StatusInternalServerError, "failed to answer question")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	st := s.backend.Stats()
	writeJSON(w, http.StatusOK, healthBody{OK: true, Chunks: st.Chunks, IndexSize: st.IndexSize, Embedder: st.Embedder})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
