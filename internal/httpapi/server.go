package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taglayer/internal/consent"
	"taglayer/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Push(e types.Entry)
	SetConsentDefaults(state map[string]string, opts *types.ConsentOptions) error
	UpdateConsent(state map[string]string, opts *types.ConsentOptions) error
	Diagnostics() types.Diagnostics
	IsReady() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		methods := corsAllowedMethods
		if len(methods) == 0 {
			methods = []string{"GET", "POST", "OPTIONS"}
		}
		headers := corsAllowedHeaders
		if len(headers) == 0 {
			headers = []string{"Accept", "Content-Type", "X-Log-Level"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
			MaxAge:         300,
		}))
	}

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Diagnostics()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Post("/push", func(w http.ResponseWriter, r *http.Request) {
		var req types.PushRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if len(req.Data) == 0 {
			IncrementRejected("empty_push")
			writeJSONError(w, http.StatusBadRequest, "data is required")
			return
		}
		start := time.Now()
		svc.Push(types.MapEntry(req.Data))
		logRequest(r, http.StatusAccepted, "push", start)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"accepted": true})
	})

	r.Post("/consent/default", consentHandler(svc.SetConsentDefaults, "consent default"))
	r.Post("/consent/update", consentHandler(svc.UpdateConsent, "consent update"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.IsReady() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// consentHandler serves both consent routes; only the service method differs.
func consentHandler(apply func(map[string]string, *types.ConsentOptions) error, op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ConsentRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		var opts *types.ConsentOptions
		if len(req.Regions) > 0 || req.WaitForUpdateMillis > 0 {
			opts = &types.ConsentOptions{
				Regions:             req.Regions,
				WaitForUpdateMillis: req.WaitForUpdateMillis,
			}
		}
		start := time.Now()
		if err := apply(req.State, opts); err != nil {
			if consent.IsValidation(err) {
				IncrementRejected("consent_invalid")
				writeJSONError(w, http.StatusBadRequest, err.Error())
				logRequest(r, http.StatusBadRequest, op, start)
				return
			}
			if he, ok := err.(HTTPError); ok {
				writeJSONError(w, he.StatusCode(), he.Error())
				logRequest(r, he.StatusCode(), op, start)
				return
			}
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			logRequest(r, http.StatusInternalServerError, op, start)
			return
		}
		logRequest(r, http.StatusAccepted, op, start)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"accepted": true})
	}
}

// decodeJSONBody enforces the JSON content type and body ceiling, then
// decodes into dst. It writes the error response itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func logRequest(r *http.Request, status int, op string, start time.Time) {
	if zlog == nil || requestLogLevel(r) < LevelInfo {
		return
	}
	z := zlog.Info().Str("path", r.URL.Path).Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg(op)
}
