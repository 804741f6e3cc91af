package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const apiKeyHeader = "X-API-Key"

// exemptPath reports whether a request path skips API-key auth. Webhook
// ingestion is open because Telegram cannot send custom auth headers; it
// carries its own per-bot secret token instead.
func exemptPath(path string) bool {
	switch path {
	case "/", "/health", "/favicon.ico":
		return true
	}
	return strings.HasPrefix(path, "/api/v1/webhook/")
}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	if !a.Cfg.APIKeyEnabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			a.Logger.Warn("Missing API key", zap.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing %s header", apiKeyHeader)
			return
		}

		valid, _ := a.Keys.Validate(key)
		if !valid {
			a.Logger.Warn("Invalid API key", zap.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// timedWriter injects the X-Process-Time header just before the first
// write, which is the last moment headers can still change.
type timedWriter struct {
	http.ResponseWriter
	start  time.Time
	status int
}

func (w *timedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
		w.Header().Set("X-Process-Time", fmt.Sprintf("%.4f", time.Since(w.start).Seconds()))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (a *API) timingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &timedWriter{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(tw, r)
		a.Logger.Debug("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", tw.status),
			zap.Duration("elapsed", time.Since(tw.start)))
	})
}

func (a *API) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.Logger.Error("Handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
