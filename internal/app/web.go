// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/step_detector/internal/classifier"
	"github.com/relabs-tech/step_detector/internal/config"
	"github.com/relabs-tech/step_detector/internal/detector"
	"github.com/relabs-tech/step_detector/internal/imu"
)

const apiVersion = "1.0.0"

const (
	defaultMaxSessions = 256
	maxBodyBytes       = 64 << 10
)

// requiredFields lists the reading keys every request must carry.
var requiredFields = []string{"accel_x", "accel_y", "accel_z", "gyro_x", "gyro_y", "gyro_z"}

// Server is the HTTP and websocket front end. It owns one default session,
// used by the flat routes and /ws/realtime, plus any number of sessions
// created through /sessions.
type Server struct {
	cfg      *config.Config
	model    classifier.Model
	def      *detector.Session
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	sessions    map[string]*detector.Session
	maxSessions int
}

// NewServer builds the default session from cfg. The model may be
// classifier.Unavailable, in which case detection routes answer 503.
func NewServer(cfg *config.Config, model classifier.Model) (*Server, error) {
	def, err := detector.NewSession(cfg.Thresholds, cfg.WindowSize, model)
	if err != nil {
		return nil, fmt.Errorf("default session: %w", err)
	}
	return &Server{
		cfg:   cfg,
		model: model,
		def:   def,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins, browsers talk to the wearable directly
			},
		},
		sessions:    make(map[string]*detector.Session),
		maxSessions: defaultMaxSessions,
	}, nil
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /model_info", s.handleModelInfo)

	mux.HandleFunc("POST /detect_step", s.withSession(s.defaultSession, s.handleDetect))
	mux.HandleFunc("GET /step_count", s.withSession(s.defaultSession, s.handleStepCount))
	mux.HandleFunc("POST /reset_count", s.withSession(s.defaultSession, s.handleReset))
	mux.HandleFunc("GET /session_summary", s.withSession(s.defaultSession, s.handleSummary))

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/detect_step", s.withSession(s.namedSession, s.handleDetect))
	mux.HandleFunc("GET /sessions/{id}/summary", s.withSession(s.namedSession, s.handleSummary))
	mux.HandleFunc("GET /sessions/{id}/step_count", s.withSession(s.namedSession, s.handleStepCount))
	mux.HandleFunc("POST /sessions/{id}/reset", s.withSession(s.namedSession, s.handleReset))
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("GET /ws/realtime", s.handleRealtime)
	return mux
}

// RunWeb loads the classifier and serves the API on WEB_SERVER_PORT.
func RunWeb(cfg *config.Config) error {
	model := classifier.NewOrUnavailable(cfg)
	defer model.Close()

	srv, err := NewServer(cfg, model)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: step detection API listening on %s (model loaded: %v)", addr, model.Ready())
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpSrv.ListenAndServe()
}

type sessionLookup func(r *http.Request) (*detector.Session, bool)

func (s *Server) defaultSession(*http.Request) (*detector.Session, bool) {
	return s.def, true
}

func (s *Server) namedSession(r *http.Request) (*detector.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[r.PathValue("id")]
	return sess, ok
}

// withSession resolves the target session and rejects requests while the
// classifier is not ready.
func (s *Server) withSession(lookup sessionLookup, h func(http.ResponseWriter, *http.Request, *detector.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := lookup(r)
		if !ok {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		if !sess.Ready() {
			writeError(w, http.StatusServiceUnavailable, "Model not loaded")
			return
		}
		h(w, r, sess)
	}
}

// readingRequest uses pointers so missing fields can be told apart from zeros.
type readingRequest struct {
	AccelX *float64 `json:"accel_x"`
	AccelY *float64 `json:"accel_y"`
	AccelZ *float64 `json:"accel_z"`
	GyroX  *float64 `json:"gyro_x"`
	GyroY  *float64 `json:"gyro_y"`
	GyroZ  *float64 `json:"gyro_z"`
}

const missingFieldsMsg = "Missing required sensor data fields"

// missing names the absent channels in requiredFields order.
func (rr readingRequest) missing() []string {
	var out []string
	for i, v := range []*float64{rr.AccelX, rr.AccelY, rr.AccelZ, rr.GyroX, rr.GyroY, rr.GyroZ} {
		if v == nil {
			out = append(out, requiredFields[i])
		}
	}
	return out
}

// sample reports false if any channel is absent.
func (rr readingRequest) sample() (imu.Sample, bool) {
	if len(rr.missing()) > 0 {
		return imu.Sample{}, false
	}
	return imu.Sample{
		AccelX: *rr.AccelX, AccelY: *rr.AccelY, AccelZ: *rr.AccelZ,
		GyroX: *rr.GyroX, GyroY: *rr.GyroY, GyroZ: *rr.GyroZ,
	}, true
}

// DetectionResponse is the wire form of one processed reading.
type DetectionResponse struct {
	StepStart        bool    `json:"step_start"`
	StepEnd          bool    `json:"step_end"`
	StartProbability float64 `json:"start_probability"`
	EndProbability   float64 `json:"end_probability"`
	StepCount        uint64  `json:"step_count"`
	Timestamp        string  `json:"timestamp"`
	Status           string  `json:"status,omitempty"`
}

func newDetectionResponse(res detector.Result) DetectionResponse {
	return DetectionResponse{
		StepStart:        res.StepStart,
		StepEnd:          res.StepEnd,
		StartProbability: res.StartProbability,
		EndProbability:   res.EndProbability,
		StepCount:        res.StepCount,
		Timestamp:        res.Timestamp.Format(time.RFC3339Nano),
	}
}

// processStatus maps pipeline errors to HTTP codes.
func processStatus(err error) int {
	switch {
	case errors.Is(err, detector.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, imu.ErrInvalidSample):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request, sess *detector.Session) {
	var req readingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	sample, ok := req.sample()
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail":   missingFieldsMsg,
			"required": requiredFields,
		})
		return
	}

	res, err := sess.Process(r.Context(), sample)
	if err != nil {
		log.Printf("web: detection error: %v", err)
		writeError(w, processStatus(err), fmt.Sprintf("Detection error: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, newDetectionResponse(res))
}

func (s *Server) handleStepCount(w http.ResponseWriter, _ *http.Request, sess *detector.Session) {
	sum := sess.Summary()
	writeJSON(w, http.StatusOK, map[string]any{
		"step_count":     sum.StepCount,
		"last_detection": sum.LastEvent,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request, sess *detector.Session) {
	sess.Reset()
	log.Printf("web: step count reset")
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Step count reset",
		"step_count": 0,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request, sess *detector.Session) {
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	thresholds, err := s.decodeThresholds(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	sess, err := detector.NewSession(thresholds, s.cfg.WindowSize, s.model)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		writeError(w, http.StatusTooManyRequests, "Too many sessions")
		return
	}
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	log.Printf("web: session %s created (%d active)", id, n)

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": id,
		"thresholds": thresholds,
	})
}

// decodeThresholds overlays the request body on the configured thresholds.
// As in the config file, a confidence_threshold given without a
// step_class_threshold carries over to the step class threshold.
func (s *Server) decodeThresholds(w http.ResponseWriter, r *http.Request) (detector.ThresholdConfig, error) {
	thresholds := s.cfg.Thresholds
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return thresholds, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return thresholds, nil
	}
	if err := json.Unmarshal(body, &thresholds); err != nil {
		return thresholds, err
	}
	var keys struct {
		Confidence *float64 `json:"confidence_threshold"`
		StepClass  *float64 `json:"step_class_threshold"`
	}
	if err := json.Unmarshal(body, &keys); err != nil {
		return thresholds, err
	}
	if keys.Confidence != nil && keys.StepClass == nil {
		thresholds.StepClassThreshold = *keys.Confidence
	}
	return thresholds, nil
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	status := "active"
	if !s.model.Ready() {
		status = "model_not_loaded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Step Detection API",
		"version": apiVersion,
		"status":  status,
		"endpoints": map[string]string{
			"detect_step":     "POST /detect_step - Detect steps from sensor data",
			"step_count":      "GET /step_count - Get current step count",
			"reset_count":     "POST /reset_count - Reset step count",
			"session_summary": "GET /session_summary - Get session summary",
			"model_info":      "GET /model_info - Get model information",
			"sessions":        "POST /sessions - Create an isolated detection session",
			"websocket":       "WS /ws/realtime - Real-time step detection via WebSocket",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"model_loaded": s.model.Ready(),
		"api_version":  apiVersion,
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	status := "active"
	if !s.model.Ready() {
		status = "model_not_loaded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model_info":      s.model.Describe(),
		"api_status":      status,
		"window_size":     s.cfg.WindowSize,
		"thresholds":      s.def.Config(),
		"magnitude_floor": s.def.MagnitudeFloor(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// writeDecodeError answers 413 for bodies over maxBodyBytes, 400 otherwise.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid JSON format")
}
