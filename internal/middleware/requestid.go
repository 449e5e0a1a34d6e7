// Package middleware provides HTTP middleware shared by every RelayForge surface.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/RelayForge/internal/logger"
)

// HeaderRequestID carries the request id between processes.
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLen bounds accepted inbound ids; longer ones are replaced.
const maxRequestIDLen = 128

// RequestID is HTTP middleware that extracts X-Request-ID from the request
// header or generates a new one. The ID is stored in the context and set
// on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Propagate copies the request id in req's context onto its outbound headers.
func Propagate(req *http.Request) {
	if id := logger.RequestID(req.Context()); id != "" {
		req.Header.Set(HeaderRequestID, id)
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
