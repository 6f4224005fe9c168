package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"residencyd/internal/residency"
	"residencyd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Engines() []types.EngineInfo
	Status() types.StatusResponse
	Stats() types.StatsResponse
	EpochNow() int64
	AcquireModel(ctx context.Context, req types.AcquireRequest) (types.HandleInfo, error)
	RemoveModel(engine, kind, variant string) bool
	ClearCache(kind, engine string) int
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	registerCacheMetrics(svc)

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
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Get("/engines", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"engines": svc.Engines()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Stats())
	})

	r.Get("/epoch", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.EpochResponse{Epoch: svc.EpochNow()})
	})

	r.Post("/models/acquire", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.AcquireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Str("engine", req.Engine).Str("variant", req.Variant).Str("device", req.Device)
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("acquire start")
			} else {
				log.Printf("acquire start engine=%s variant=%s device=%s", req.Engine, req.Variant, req.Device)
			}
		}

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if sec := acquireTimeout; sec > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(sec)*time.Second)
			defer tcancel()
		}

		info, err := svc.AcquireModel(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := acquireErrorStatus(err)
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo {
				if zlog != nil {
					z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
					if rid := middleware.GetReqID(r.Context()); rid != "" {
						z = z.Str("request_id", rid)
					}
					z.Err(err).Msg("acquire end")
				} else {
					log.Printf("acquire end status=%d dur=%s err=%v", status, time.Since(start), err)
				}
			}
			return
		}
		writeJSON(w, info)
		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Str("handle", info.ID)
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("acquire end")
			} else {
				log.Printf("acquire end status=200 dur=%s handle=%s", time.Since(start), info.ID)
			}
		}
	})

	r.Delete("/models/{engine}/{kind}/{variant}", func(w http.ResponseWriter, r *http.Request) {
		removed := svc.RemoveModel(
			chi.URLParam(r, "engine"),
			chi.URLParam(r, "kind"),
			chi.URLParam(r, "variant"),
		)
		if !removed {
			writeJSONError(w, http.StatusNotFound, "no such cached model")
			return
		}
		writeJSON(w, types.RemoveResponse{Removed: true})
	})

	r.Delete("/models/{engine}/{kind}", func(w http.ResponseWriter, r *http.Request) {
		removed := svc.RemoveModel(chi.URLParam(r, "engine"), chi.URLParam(r, "kind"), "")
		if !removed {
			writeJSONError(w, http.StatusNotFound, "no such cached model")
			return
		}
		writeJSON(w, types.RemoveResponse{Removed: true})
	})

	r.Post("/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ClearRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		n := svc.ClearCache(req.Kind, req.Engine)
		writeJSON(w, types.ClearResponse{Cleared: n})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// acquireErrorStatus maps well-known cache errors to HTTP status codes.
func acquireErrorStatus(err error) int {
	if residency.IsNotFound(err) {
		return http.StatusNotFound
	}
	if residency.IsConstructionFailed(err) {
		return http.StatusBadGateway
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
