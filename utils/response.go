package utils

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
)

// RespondWithJSON sends data as a JSON response.
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// SendMessage sends {"message": msg} merged with extra fields.
func SendMessage(w http.ResponseWriter, statusCode int, msg string, extra M) {
	body := M{"message": msg}
	for k, v := range extra {
		body[k] = v
	}
	RespondWithJSON(w, statusCode, body)
}

type M map[string]any

// StatusWriter records the status code and body size written through it.
type StatusWriter struct {
	http.ResponseWriter
	Status int
	Bytes  int
}

func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	if sw, ok := w.(*StatusWriter); ok {
		return sw
	}
	return &StatusWriter{ResponseWriter: w, Status: http.StatusOK}
}

func (s *StatusWriter) WriteHeader(code int) {
	s.Status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *StatusWriter) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.Bytes += n
	return n, err
}

func (s *StatusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack passes through to the underlying writer for websocket upgrades.
func (s *StatusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.Status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// ClientIP is the host part of the connection's remote address. Forwarding
// headers are ignored since any client can set them.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
