// Package emulator is a local stand-in for the Vertex AI long-running video
// endpoints. Operations report "not done" for a configurable number of
// polls, then finish with placeholder videos written to a FileStore.
package emulator

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/infra"
	"orbitstudio/internal/middleware"
	"orbitstudio/internal/providers/veo"
	"orbitstudio/internal/storage"
)

const resultType = "type.googleapis.com/cloud.ai.large_models.vision.GenerateVideoResponse"

const (
	maxSamples         = 4
	defaultMaxFinished = 256
	defaultMaxPending  = 1024
)

// Options configures a Server.
type Options struct {
	Store *storage.FileStore
	// PendingPolls is how many status queries answer "not done" before an
	// operation completes.
	PendingPolls int
	// MaxFinished bounds how many finished operations stay queryable; the
	// oldest is forgotten first. Zero means 256.
	MaxFinished int
	// MaxPending bounds operations accepted but not yet finished; predict
	// answers RESOURCE_EXHAUSTED beyond it. Zero means 1024.
	MaxPending int
	Logger     *infra.Logger
}

type operation struct {
	name        domain.OperationHandle
	prompt      string
	storageURI  string
	sampleCount int
	polls       int
	result      *veo.OperationResponse
}

// Server implements predictLongRunning and fetchPredictOperation.
type Server struct {
	store       *storage.FileStore
	pending     int
	maxFinished int
	maxPending  int
	logger      *infra.Logger

	mu       sync.Mutex
	ops      map[domain.OperationHandle]*operation
	finished []domain.OperationHandle
}

func New(opts Options) *Server {
	s := &Server{
		store:       opts.Store,
		pending:     max(opts.PendingPolls, 0),
		maxFinished: opts.MaxFinished,
		maxPending:  opts.MaxPending,
		logger:      infra.LoggerOrDiscard(opts.Logger),
		ops:         make(map[domain.OperationHandle]*operation),
	}
	if s.maxFinished <= 0 {
		s.maxFinished = defaultMaxFinished
	}
	if s.maxPending <= 0 {
		s.maxPending = defaultMaxPending
	}
	return s
}

// Handler routes the model endpoints under /v1.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger(s.logger), chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/projects/{project}/locations/{location}/publishers/google/models/{action}", s.dispatch)
	return r
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	model, method, ok := strings.Cut(chi.URLParam(r, "action"), ":")
	if !ok || model == "" {
		writeStatus(w, http.StatusNotFound, "NOT_FOUND", "unknown method")
		return
	}
	route := veo.HandleParts{
		Project:  chi.URLParam(r, "project"),
		Location: chi.URLParam(r, "location"),
		Model:    model,
	}
	switch method {
	case "predictLongRunning":
		s.predict(w, r, route)
	case "fetchPredictOperation":
		s.fetch(w, r)
	default:
		writeStatus(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("method %q is not supported", method))
	}
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request, route veo.HandleParts) {
	var req veo.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "INVALID_ARGUMENT", "request body is not valid JSON")
		return
	}
	if len(req.Instances) == 0 || strings.TrimSpace(req.Instances[0].Prompt) == "" {
		writeStatus(w, http.StatusBadRequest, "INVALID_ARGUMENT", "instances[0].prompt is required")
		return
	}
	if !strings.HasPrefix(req.Parameters.StorageURI, "gs://") {
		writeStatus(w, http.StatusBadRequest, "INVALID_ARGUMENT", "parameters.storageUri must be a gs:// uri")
		return
	}

	route.Operation = uuid.NewString()
	op := &operation{
		name:        veo.FormatHandle(route),
		prompt:      req.Instances[0].Prompt,
		storageURI:  strings.TrimRight(req.Parameters.StorageURI, "/"),
		sampleCount: min(max(req.Parameters.SampleCount, 1), maxSamples),
	}
	s.mu.Lock()
	if len(s.ops)-len(s.finished) >= s.maxPending {
		s.mu.Unlock()
		writeStatus(w, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "too many operations in flight")
		return
	}
	s.ops[op.name] = op
	s.mu.Unlock()

	s.logger.Info().
		Str("operation", string(op.name)).
		Int("reference_images", len(req.Instances[0].ReferenceImages)).
		Int("sample_count", op.sampleCount).
		Msg("emulator: operation accepted")
	writeJSON(w, http.StatusOK, veo.PredictResponse{Name: string(op.name)})
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	var req veo.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OperationName == "" {
		writeStatus(w, http.StatusBadRequest, "INVALID_ARGUMENT", "operationName is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[domain.OperationHandle(req.OperationName)]
	if !ok {
		writeStatus(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("operation %s not found", req.OperationName))
		return
	}
	op.polls++
	if op.result == nil && op.polls <= s.pending {
		writeJSON(w, http.StatusOK, veo.OperationResponse{Name: string(op.name)})
		return
	}
	if op.result == nil {
		op.result = s.complete(r, op)
		s.retire(op.name)
	}
	writeJSON(w, http.StatusOK, op.result)
}

// retire queues a finished operation and forgets the oldest ones beyond
// maxFinished. It runs with s.mu held.
func (s *Server) retire(name domain.OperationHandle) {
	s.finished = append(s.finished, name)
	for len(s.finished) > s.maxFinished {
		delete(s.ops, s.finished[0])
		s.finished = s.finished[1:]
	}
}

// complete renders the placeholder videos of op. It runs with s.mu held.
func (s *Server) complete(r *http.Request, op *operation) *veo.OperationResponse {
	parts, _ := veo.ParseHandle(op.name)
	videos := make([]domain.GeneratedVideo, 0, op.sampleCount)
	for i := 0; i < op.sampleCount; i++ {
		uri := fmt.Sprintf("%s/%s/sample_%d.mp4", op.storageURI, parts.Operation, i)
		key, err := storage.KeyForGCSURI(uri)
		if err == nil {
			_, err = s.store.Write(r.Context(), key, renderPlaceholderVideo(seedFor(op.name, i), op.prompt))
		}
		if err != nil {
			s.logger.Error().Err(err).Str("operation", string(op.name)).Msg("emulator: write video failed")
			return &veo.OperationResponse{
				Name:  string(op.name),
				Done:  true,
				Error: &domain.OperationError{Code: 13, Message: "failed to store generated video"},
			}
		}
		videos = append(videos, domain.GeneratedVideo{GCSURI: uri, MimeType: "video/mp4"})
	}
	s.logger.Info().Str("operation", string(op.name)).Int("videos", len(videos)).Msg("emulator: operation finished")
	return &veo.OperationResponse{
		Name:     string(op.name),
		Done:     true,
		Response: &veo.OperationResult{Type: resultType, Videos: videos},
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, status, message string) {
	var body veo.ErrorResponse
	body.Error.Code = code
	body.Error.Message = message
	body.Error.Status = status
	writeJSON(w, code, body)
}

func seedFor(name domain.OperationHandle, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", name, index)))
	return hex.EncodeToString(sum[:])[:16]
}

// renderPlaceholderVideo produces a minimal ISO BMFF file: an ftyp box
// followed by a free box carrying the seed and prompt.
func renderPlaceholderVideo(seed, prompt string) []byte {
	var buf bytes.Buffer
	writeBox(&buf, "ftyp", []byte("isom\x00\x00\x02\x00isomiso2mp41"))
	writeBox(&buf, "free", []byte(fmt.Sprintf("orbitstudio placeholder\nseed: %s\nprompt: %s\n", seed, strings.TrimSpace(prompt))))
	return buf.Bytes()
}

func writeBox(buf *bytes.Buffer, kind string, payload []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(8+len(payload)))
	buf.Write(size[:])
	buf.WriteString(kind)
	buf.Write(payload)
}
