package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/STRATA/internal/config"
	"github.com/copyleftdev/STRATA/internal/integrand"
	"github.com/copyleftdev/STRATA/internal/integrate"
	"github.com/copyleftdev/STRATA/internal/integrate/plain"
	"github.com/copyleftdev/STRATA/internal/integrate/vegas"
	"github.com/copyleftdev/STRATA/internal/metrics"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// errNotFound maps to 404 on the REST surface.
var errNotFound = errors.New("integration not found")

// JobRequest is the integration job submission payload, shared by the
// REST and JSON-RPC surfaces. Omitted fields take the server defaults.
type JobRequest struct {
	Integrand string           `json:"integrand"`
	Params    integrand.Params `json:"params"`
	Lower     []float64        `json:"lower"`
	Upper     []float64        `json:"upper"`
	Calls     int              `json:"calls"`
	Workers   int              `json:"workers"`
	Seed      int64            `json:"seed"`
	Combine   string           `json:"combine"`
	Engine    string           `json:"engine"`
}

// JobState tracks one integration job.
// Access is guarded by the server's jobs mutex.
type JobState struct {
	ID          string
	Status      string // "pending", "running", "completed", "failed", "cancelled"
	Request     JobRequest
	StartTime   time.Time
	EndTime     *time.Time
	Result      *integrate.Result
	Expected    *float64
	Err         string
	CancelFunc  context.CancelFunc
	LastUpdated time.Time
}

// Server implements the HTTP and JSON-RPC server for the integration
// service. It manages integration jobs and provides endpoints to start,
// monitor, and cancel them.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Job state management
	jobs   map[string]*JobState
	jobsMu sync.RWMutex // Protects the jobs map
}

// NewServer creates a new server instance with the given config, logger
// and metrics.
func NewServer(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		jobs:    make(map[string]*JobState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/integrations", s.handleCreate)
		r.Get("/integrations/{id}", s.handleStatus)
		r.Delete("/integrations/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", nil)
		return
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch request.Method {
	case "integration.start":
		result, err = s.startJob(firstParam(request.Params))
	case "integration.status":
		result, err = s.jobStatus(firstParam(request.Params))
	case "integration.cancel":
		result, err = s.cancelJob(firstParam(request.Params))
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := -32000
		if integrate.IsConfigError(err) {
			code = -32602
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	// Send successful response
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func firstParam(params []json.RawMessage) json.RawMessage {
	if len(params) == 0 {
		return nil
	}
	return params[0]
}

// startJob starts a new integration job from a raw request object.
// Returns {"integration_id": "...", "status": "pending"}.
func (s *Server) startJob(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, integrate.NewConfigErrorf("params", "missing request object")
	}

	// Server defaults apply to omitted fields.
	req := JobRequest{
		Params:  integrand.DefaultParams(),
		Calls:   s.cfg.Integration.Calls,
		Workers: s.cfg.Integration.Workers,
		Seed:    s.cfg.Integration.Seed,
		Combine: s.cfg.Integration.Combine,
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, integrate.NewConfigErrorf("params", "malformed request: %v", err)
	}
	if req.Integrand == "" {
		req.Integrand = "polynomial"
	}
	if len(req.Lower) == 0 && len(req.Upper) == 0 {
		cube := integrate.UnitCube(3)
		req.Lower, req.Upper = cube.Lower, cube.Upper
	}

	def, err := integrand.Lookup(req.Integrand)
	if err != nil {
		return nil, err
	}
	region := integrate.Region{Lower: req.Lower, Upper: req.Upper}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if req.Calls <= 0 {
		return nil, integrate.NewConfigErrorf("calls", "must be positive, got %d", req.Calls)
	}
	if max := s.cfg.Integration.MaxCalls; max > 0 && req.Calls > max {
		return nil, integrate.NewConfigErrorf("calls", "%d exceeds the server cap of %d", req.Calls, max)
	}
	mode, err := integrate.ParseCombineMode(req.Combine)
	if err != nil {
		return nil, err
	}
	factory, err := s.engineFactory(req.Engine)
	if err != nil {
		return nil, err
	}

	par, err := integrate.NewParallel(integrate.Options{
		Workers:       req.Workers,
		BaseSeed:      req.Seed,
		Mode:          mode,
		NewIntegrator: factory,
		Logger:        s.logger.Named("integrate"),
	})
	if err != nil {
		return nil, err
	}

	// Generate a unique ID for this job
	id := uuid.NewString()

	// Create a cancellable context
	ctx, cancel := context.WithCancel(context.Background())

	state := &JobState{
		ID:          id,
		Status:      StatusPending,
		Request:     req,
		StartTime:   time.Now(),
		CancelFunc:  cancel,
		LastUpdated: time.Now(),
	}
	if expected, ok := def.Expected(req.Params, region); ok {
		state.Expected = &expected
	}

	// Store the job state
	s.jobsMu.Lock()
	s.jobs[id] = state
	s.jobsMu.Unlock()

	// Run the integration in a goroutine
	go s.runJob(ctx, state, par, def.Build(req.Params), region)

	return map[string]interface{}{
		"integration_id": id,
		"status":         StatusPending,
	}, nil
}

// engineFactory maps an engine name to a per-worker integrator factory.
func (s *Server) engineFactory(name string) (func() integrate.Integrator, error) {
	vopts := vegas.Options{
		Iterations: s.cfg.Integration.Iterations,
		Bins:       s.cfg.Integration.Bins,
		Alpha:      s.cfg.Integration.Alpha,
	}
	switch name {
	case "", "vegas":
		return func() integrate.Integrator { return vegas.New(vopts) }, nil
	case "plain":
		return func() integrate.Integrator { return plain.New() }, nil
	default:
		return nil, integrate.NewConfigErrorf("engine", "unknown engine %q, have vegas or plain", name)
	}
}

// runJob executes the integration in a goroutine and records the
// terminal state.
func (s *Server) runJob(ctx context.Context, state *JobState, par *integrate.Parallel, f integrate.Integrand, region integrate.Region) {
	s.jobsMu.Lock()
	state.Status = StatusRunning
	state.LastUpdated = time.Now()
	s.jobsMu.Unlock()

	s.metrics.JobsInFlight.Inc()
	start := time.Now()

	result, err := par.Integrate(ctx, f, region, state.Request.Calls)

	s.metrics.JobsInFlight.Dec()
	s.metrics.JobDuration.Observe(time.Since(start).Seconds())

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	// A cancel that already won the race keeps its terminal state.
	if state.Status == StatusCancelled {
		s.metrics.JobsTotal.WithLabelValues(StatusCancelled).Inc()
		return
	}

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		state.Status = StatusCancelled
	case err != nil:
		s.logger.Error("Integration failed",
			zap.String("integration_id", state.ID),
			zap.Error(err),
		)
		state.Status = StatusFailed
		state.Err = err.Error()
	default:
		state.Status = StatusCompleted
		state.Result = result
		s.metrics.SamplesTotal.Add(float64(result.Workers * result.CallsPerWorker))
	}
	s.metrics.JobsTotal.WithLabelValues(state.Status).Inc()

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
}

// parseJobID extracts {"integration_id": "..."} from a raw request
// object.
func parseJobID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", integrate.NewConfigErrorf("params", "missing request object")
	}
	var req struct {
		ID string `json:"integration_id"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", integrate.NewConfigErrorf("params", "malformed request: %v", err)
	}
	if req.ID == "" {
		return "", integrate.NewConfigErrorf("integration_id", "required")
	}
	return req.ID, nil
}

// jobStatus handles the integration.status JSON-RPC method.
func (s *Server) jobStatus(raw json.RawMessage) (interface{}, error) {
	id, err := parseJobID(raw)
	if err != nil {
		return nil, err
	}
	return s.statusByID(id)
}

// statusByID returns the status object for one job.
func (s *Server) statusByID(id string) (interface{}, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	state, exists := s.jobs[id]
	if !exists {
		return nil, errNotFound
	}

	response := map[string]interface{}{
		"integration_id": state.ID,
		"status":         state.Status,
		"request":        state.Request,
		"start_time":     state.StartTime.Format(time.RFC3339),
		"last_update":    state.LastUpdated.Format(time.RFC3339),
	}

	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Expected != nil {
		response["expected"] = jsonFloat(*state.Expected)
	}
	if state.Err != "" {
		response["error"] = state.Err
	}
	if state.Result != nil {
		response["result"] = map[string]interface{}{
			"value":            jsonFloat(state.Result.Value),
			"std_error":        jsonFloat(state.Result.StdErr),
			"workers":          state.Result.Workers,
			"calls_per_worker": state.Result.CallsPerWorker,
			"non_finite":       state.Result.NonFinite,
		}
	}

	return response, nil
}

// jsonFloat keeps non-finite estimates representable; encoding/json
// rejects NaN and the infinities outright.
func jsonFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}

// cancelJob handles the integration.cancel JSON-RPC method.
func (s *Server) cancelJob(raw json.RawMessage) (interface{}, error) {
	id, err := parseJobID(raw)
	if err != nil {
		return nil, err
	}
	if err := s.cancelByID(id); err != nil {
		return nil, err
	}
	return map[string]string{"status": "cancellation requested"}, nil
}

// cancelByID cancels a pending or running job.
func (s *Server) cancelByID(id string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	state, exists := s.jobs[id]
	if !exists {
		return errNotFound
	}

	switch state.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		// Already in a terminal state
		return integrate.NewConfigErrorf("integration_id", "cannot cancel integration with status %s", state.Status)
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}

	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Integration cancelled", zap.String("integration_id", id))

	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Error("Request error",
		zap.Int("code", code),
		zap.String("message", message),
	)

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// respondJSON writes payload with the given HTTP status.
func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// statusFor maps an error to its REST status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case integrate.IsConfigError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Close cancels all running jobs.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, job := range s.jobs {
		if job.CancelFunc != nil {
			job.CancelFunc()
		}
	}
	return nil
}

// handleCreate handles POST /api/v1/integrations.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "request body unreadable or too large",
		})
		return
	}

	result, err := s.startJob(body)
	if err != nil {
		s.respondJSON(w, statusFor(err), map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.respondJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/integrations/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "missing integration ID",
		})
		return
	}

	result, err := s.statusByID(id)
	if err != nil {
		s.respondJSON(w, statusFor(err), map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/integrations/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "missing integration ID",
		})
		return
	}

	if err := s.cancelByID(id); err != nil {
		s.respondJSON(w, statusFor(err), map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}
