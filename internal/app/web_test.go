package app

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_detector/internal/classifier"
	"github.com/relabs-tech/step_detector/internal/config"
	"github.com/relabs-tech/step_detector/internal/detector"
)

func newTestServer(t *testing.T, model classifier.Model) *httptest.Server {
	t.Helper()
	srv, err := NewServer(config.Default(), model)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		rd = bytes.NewReader(mustJSON(t, b))
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHealthAndRoot(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})

	code, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, apiVersion, body["api_version"])

	code, body = doJSON(t, http.MethodGet, ts.URL+"/", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", body["status"])
	assert.Contains(t, body["endpoints"], "detect_step")
}

func TestDetectStepFlow(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})

	code, body := doJSON(t, http.MethodPost, ts.URL+"/detect_step", reading(1))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["step_start"])
	assert.Equal(t, false, body["step_end"])
	assert.InDelta(t, 0.9, body["start_probability"], 1e-9)
	assert.Equal(t, 1.0, body["step_count"])
	assert.NotEmpty(t, body["timestamp"])

	code, body = doJSON(t, http.MethodPost, ts.URL+"/detect_step", reading(-1))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["step_end"])
	assert.Equal(t, 1.0, body["step_count"])

	code, body = doJSON(t, http.MethodGet, ts.URL+"/step_count", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["step_count"])
	last, ok := body["last_detection"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "end", last["kind"])

	code, body = doJSON(t, http.MethodGet, ts.URL+"/session_summary", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, body["total_readings"])
	assert.Equal(t, 1.0, body["completed_steps"])

	code, body = doJSON(t, http.MethodPost, ts.URL+"/reset_count", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Step count reset", body["message"])

	_, body = doJSON(t, http.MethodGet, ts.URL+"/step_count", nil)
	assert.Equal(t, 0.0, body["step_count"])
	assert.Nil(t, body["last_detection"])
}

func TestDetectStepBadRequests(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})

	code, body := doJSON(t, http.MethodPost, ts.URL+"/detect_step", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid JSON format", body["detail"])

	partial := reading(0)
	delete(partial, "gyro_y")
	code, body = doJSON(t, http.MethodPost, ts.URL+"/detect_step", partial)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, missingFieldsMsg, body["detail"])
	assert.Len(t, body["required"], 6)

	wild := reading(0)
	wild["accel_x"] = 1e6
	code, body = doJSON(t, http.MethodPost, ts.URL+"/detect_step", wild)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["detail"], "accel_x")

	// Nothing above counted as a reading.
	_, body = doJSON(t, http.MethodGet, ts.URL+"/session_summary", nil)
	assert.Equal(t, 0.0, body["total_readings"])
}

func TestModelNotLoaded(t *testing.T) {
	ts := newTestServer(t, classifier.Unavailable{Reason: "missing weights"})

	for _, tt := range []struct{ method, path string }{
		{http.MethodPost, "/detect_step"},
		{http.MethodGet, "/step_count"},
		{http.MethodPost, "/reset_count"},
		{http.MethodGet, "/session_summary"},
	} {
		code, body := doJSON(t, tt.method, ts.URL+tt.path, reading(1))
		assert.Equal(t, http.StatusServiceUnavailable, code, tt.path)
		assert.Equal(t, "Model not loaded", body["detail"], tt.path)
	}

	_, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, false, body["model_loaded"])

	code, body := doJSON(t, http.MethodGet, ts.URL+"/model_info", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "model_not_loaded", body["api_status"])
	info := body["model_info"].(map[string]any)
	assert.Equal(t, "missing weights", info["reason"])
}

func TestModelInfo(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})
	code, body := doJSON(t, http.MethodGet, ts.URL+"/model_info", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 50.0, body["window_size"])
	assert.Equal(t, 8.0, body["magnitude_floor"])
	th := body["thresholds"].(map[string]any)
	assert.Equal(t, 0.7, th["step_class_threshold"])
}

func TestSessionsAreIsolated(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})

	code, body := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil)
	require.Equal(t, http.StatusCreated, code)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	base := ts.URL + "/sessions/" + id

	code, body = doJSON(t, http.MethodPost, base+"/detect_step", reading(1))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["step_count"])

	_, body = doJSON(t, http.MethodGet, ts.URL+"/step_count", nil)
	assert.Equal(t, 0.0, body["step_count"], "default session untouched")

	_, body = doJSON(t, http.MethodGet, base+"/summary", nil)
	assert.Equal(t, 1.0, body["step_count"])
	assert.Equal(t, 1.0, body["start_events"])

	code, _ = doJSON(t, http.MethodPost, base+"/reset", nil)
	assert.Equal(t, http.StatusOK, code)
	_, body = doJSON(t, http.MethodGet, base+"/step_count", nil)
	assert.Equal(t, 0.0, body["step_count"])

	code, _ = doJSON(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, body = doJSON(t, http.MethodPost, base+"/detect_step", reading(1))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Session not found", body["detail"])
	code, _ = doJSON(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessionThresholdOverrides(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})

	cfg := config.Default().Thresholds
	cfg.StepClassThreshold = 0.95
	code, body := doJSON(t, http.MethodPost, ts.URL+"/sessions", cfg)
	require.Equal(t, http.StatusCreated, code)
	id := body["session_id"].(string)

	// 0.9 start probability no longer clears the class floor.
	_, body = doJSON(t, http.MethodPost, ts.URL+"/sessions/"+id+"/detect_step", reading(1))
	assert.Equal(t, false, body["step_start"])
	assert.Equal(t, 0.0, body["step_count"])

	code, body = doJSON(t, http.MethodPost, ts.URL+"/sessions", `{"step_class_threshold": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["detail"], "step_class_threshold")
}

func TestSessionConfidenceCarriesToStepClass(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})

	code, body := doJSON(t, http.MethodPost, ts.URL+"/sessions", `{"confidence_threshold": 0.95}`)
	require.Equal(t, http.StatusCreated, code)
	got := body["thresholds"].(map[string]any)
	assert.Equal(t, 0.95, got["confidence_threshold"])
	assert.Equal(t, 0.95, got["step_class_threshold"])

	id := body["session_id"].(string)
	_, body = doJSON(t, http.MethodPost, ts.URL+"/sessions/"+id+"/detect_step", reading(1))
	assert.Equal(t, false, body["step_start"])

	// An explicit step class threshold wins.
	code, body = doJSON(t, http.MethodPost, ts.URL+"/sessions",
		`{"confidence_threshold": 0.95, "step_class_threshold": 0.5}`)
	require.Equal(t, http.StatusCreated, code)
	got = body["thresholds"].(map[string]any)
	assert.Equal(t, 0.5, got["step_class_threshold"])
}

func TestSessionLimit(t *testing.T) {
	srv, err := NewServer(config.Default(), gyroModel{ready: true})
	require.NoError(t, err)
	srv.maxSessions = 2
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	var ids []string
	for range 2 {
		code, body := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil)
		require.Equal(t, http.StatusCreated, code)
		ids = append(ids, body["session_id"].(string))
	}
	code, body := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "Too many sessions", body["detail"])

	// Deleting one frees a slot.
	code, _ = doJSON(t, http.MethodDelete, ts.URL+"/sessions/"+ids[0], nil)
	require.Equal(t, http.StatusNoContent, code)
	code, _ = doJSON(t, http.MethodPost, ts.URL+"/sessions", nil)
	assert.Equal(t, http.StatusCreated, code)
}

func TestOversizedBodyRejected(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})
	big := `{"accel_x": 1, "pad": "` + strings.Repeat("x", maxBodyBytes) + `"}`

	for _, path := range []string{"/detect_step", "/sessions"} {
		code, body := doJSON(t, http.MethodPost, ts.URL+path, big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, code, path)
		assert.Equal(t, "Request body too large", body["detail"], path)
	}
}

// nanModel answers with probabilities no softmax could produce.
type nanModel struct{ gyroModel }

func (nanModel) Infer(context.Context, detector.FeatureVector) (detector.ProbabilityVector, error) {
	return detector.ProbabilityVector{None: math.NaN(), Start: 7, End: 0}, nil
}

func TestDetectRejectsBadProbabilities(t *testing.T) {
	ts := newTestServer(t, nanModel{gyroModel{ready: true}})

	code, body := doJSON(t, http.MethodPost, ts.URL+"/detect_step", reading(1))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body["detail"], "classifier infer")

	_, body = doJSON(t, http.MethodGet, ts.URL+"/step_count", nil)
	assert.Equal(t, 0.0, body["step_count"])
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestRealtimeWebsocket(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/realtime"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var got map[string]any
	require.NoError(t, conn.WriteJSON(reading(1)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, true, got["step_start"])
	assert.Equal(t, 1.0, got["step_count"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	got = nil
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, map[string]any{"error": "Invalid JSON format", "status": "error"}, got)

	partial := reading(0)
	delete(partial, "accel_z")
	require.NoError(t, conn.WriteJSON(partial))
	got = nil
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, missingFieldsMsg, got["error"])
	assert.Len(t, got["required"], 6)

	wild := reading(0)
	wild["gyro_x"] = 1e5
	require.NoError(t, conn.WriteJSON(wild))
	got = nil
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "error", got["status"])
	assert.Contains(t, got["error"], "Processing error")

	// The connection survives bad messages.
	require.NoError(t, conn.WriteJSON(reading(-1)))
	got = nil
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, true, got["step_end"])
}

func TestRealtimeSessionSelection(t *testing.T) {
	ts := newTestServer(t, gyroModel{ready: true})

	_, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/realtime?session=missing"), nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)

	_, body := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil)
	id := body["session_id"].(string)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/realtime?session="+id), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(reading(1)))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 1.0, got["step_count"])

	_, body = doJSON(t, http.MethodGet, ts.URL+"/sessions/"+id+"/step_count", nil)
	assert.Equal(t, 1.0, body["step_count"])
	_, body = doJSON(t, http.MethodGet, ts.URL+"/step_count", nil)
	assert.Equal(t, 0.0, body["step_count"])
}

func TestRealtimeModelNotLoaded(t *testing.T) {
	ts := newTestServer(t, classifier.Unavailable{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/realtime"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "Model not loaded", got["error"])

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData))
}
