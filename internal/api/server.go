// Package api serves the bucket, ROM, catalogue and durability operations
// over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// maxBurnInfoBytes bounds the JSON body of burn and extend requests.
const maxBurnInfoBytes = 64 << 10

// Services are the operations the API exposes.
type Services struct {
	Users      *rom.UserService
	Buckets    *rom.BucketService
	Mounts     *rom.MountService
	Burns      *rom.BurnService
	Mapper     *rom.Mapper
	Popular    *rom.Popular
	Search     *rom.Search
	Durability *rom.Durability
}

// Server routes HTTP requests to Services.
type Server struct {
	svc      Services
	gatherer prometheus.Gatherer
	logger   rom.Logger
}

// NewServer creates a Server. A nil gatherer serves the default registry.
func NewServer(svc Services, gatherer prometheus.Gatherer, logger rom.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{svc: svc, gatherer: gatherer, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /bucket/{username}", s.getBucket)
	mux.HandleFunc("POST /bucket/{username}/files/{filename}", s.uploadFile)
	mux.HandleFunc("DELETE /bucket/{username}/files/{filename}", s.deleteFile)
	mux.HandleFunc("POST /bucket/{username}/refresh", s.refreshBucket)
	mux.HandleFunc("POST /bucket/{username}/burn", s.startBurn)
	mux.HandleFunc("POST /bucket/{username}/ack", s.acknowledgeBurn)

	mux.HandleFunc("GET /rom/{cid}", s.getRom)
	mux.HandleFunc("POST /rom/{username}/{cid}/mount", s.withUser(s.mountRom))
	mux.HandleFunc("POST /rom/{username}/{cid}/unmount", s.withUser(s.unmountRom))
	mux.HandleFunc("POST /rom/{username}/{cid}/extend", s.withUser(s.extendRom))
	mux.HandleFunc("GET /rom/{username}/{cid}/files/{filename}", s.withUser(s.downloadFile))

	mux.HandleFunc("GET /catalogue", s.popular)
	mux.HandleFunc("POST /catalogue/search/{query}", s.search)
	mux.HandleFunc("GET /durability", s.durability)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return s.logRequests(mux)
}

// withUser rejects requests whose username is not allow-listed.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.svc.Users.IsValid(r.PathValue("username")) {
			s.writeError(w, rom.ErrUnknownUser)
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rom.ErrUnknownUser), errors.Is(err, rom.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rom.ErrInvalidFilename), errors.Is(err, rom.ErrUnknownTier):
		return http.StatusBadRequest
	case errors.Is(err, rom.ErrBucketBusy), errors.Is(err, rom.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, rom.ErrVolumeFull):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBurnInfoBytes))
	return dec.Decode(v)
}
