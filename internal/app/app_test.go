package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_detector/internal/classifier"
	"github.com/relabs-tech/step_detector/internal/config"
	"github.com/relabs-tech/step_detector/internal/detector"
	"github.com/relabs-tech/step_detector/internal/imu"
	"github.com/relabs-tech/step_detector/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

// gyroModel classifies by the sign of gyro_z: positive is a step start,
// negative a step end, zero nothing.
type gyroModel struct {
	ready bool
}

func (m gyroModel) Infer(_ context.Context, fv detector.FeatureVector) (detector.ProbabilityVector, error) {
	switch gz := fv[5]; {
	case gz > 0:
		return detector.ProbabilityVector{None: 0.05, Start: 0.9, End: 0.05}, nil
	case gz < 0:
		return detector.ProbabilityVector{None: 0.05, Start: 0.05, End: 0.9}, nil
	}
	return detector.ProbabilityVector{None: 0.9, Start: 0.05, End: 0.05}, nil
}

func (m gyroModel) Ready() bool { return m.ready }

func (m gyroModel) Describe() classifier.Info {
	return classifier.Info{Kind: "test", Loaded: m.ready}
}

func (m gyroModel) Close() error { return nil }

// reading returns a JSON-ready reading with |a| ≈ 9.8 and the given gyro_z.
func reading(gz float64) map[string]float64 {
	return map[string]float64{
		"accel_x": 0.3, "accel_y": -0.2, "accel_z": 9.8,
		"gyro_x": 0.1, "gyro_y": 0.1, "gyro_z": gz,
	}
}

func sampleAt(gz float64, ts time.Time) imu.Sample {
	return imu.Sample{AccelX: 0.3, AccelY: -0.2, AccelZ: 9.8, GyroX: 0.1, GyroY: 0.1, GyroZ: gz, Timestamp: ts}
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) publish(topic string, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, retained: retained, payload: append([]byte(nil), payload...)})
	return nil
}

func (p *fakePublisher) onTopic(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func newTestBridge(t *testing.T) (*Bridge, *fakePublisher) {
	t.Helper()
	cfg := config.Default()
	sess, err := detector.NewSession(cfg.Thresholds, cfg.WindowSize, gyroModel{ready: true})
	require.NoError(t, err)
	pub := &fakePublisher{}
	return newBridge(cfg, sess, pub), pub
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestBridgePublishesEventsAndCount(t *testing.T) {
	b, pub := newTestBridge(t)
	cfg := b.cfg
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, gz := range []float64{0, 1, 1, -1, 0} {
		require.NoError(t, b.HandleSample(mustJSON(t, sampleAt(gz, base.Add(time.Duration(i)*20*time.Millisecond)))))
	}

	events := pub.onTopic(cfg.TopicStepEvents)
	require.Len(t, events, 2)
	var first detector.Result
	require.NoError(t, json.Unmarshal(events[0].payload, &first))
	assert.True(t, first.StepStart)
	assert.Equal(t, uint64(1), first.StepCount)
	require.NotNil(t, first.Event)
	assert.Equal(t, base.Add(20*time.Millisecond), first.Event.Timestamp)
	assert.False(t, events[0].retained)

	// Count only goes out when count or phase changes: initial idle, open, closed.
	counts := pub.onTopic(cfg.TopicStepCount)
	require.Len(t, counts, 3)
	var last StepCountMessage
	require.NoError(t, json.Unmarshal(counts[2].payload, &last))
	assert.Equal(t, uint64(1), last.StepCount)
	assert.Equal(t, detector.PhaseIdle, last.Phase)
	assert.True(t, counts[2].retained)
}

func TestBridgeRejectsBadPayload(t *testing.T) {
	b, pub := newTestBridge(t)

	assert.ErrorContains(t, b.HandleSample([]byte("{")), "sample unmarshal")

	err := b.HandleSample(mustJSON(t, imu.Sample{AccelX: 1e6}))
	assert.True(t, errors.Is(err, imu.ErrInvalidSample))

	// Absent channels must not decode as zeros.
	err = b.HandleSample([]byte(`{"accel_z":9.8,"gyro_z":1}`))
	assert.ErrorIs(t, err, errMissingFields)
	assert.ErrorContains(t, err, "accel_x, accel_y, gyro_x, gyro_y")

	assert.Empty(t, pub.msgs)
	assert.Zero(t, b.session.Summary().TotalReadings)
}

func TestBridgeKeepsProducerTimestamp(t *testing.T) {
	b, _ := newTestBridge(t)
	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.HandleSample(mustJSON(t, sampleAt(0, ts))))
	require.NotNil(t, b.lastSent)
	assert.True(t, b.lastSent.Time.Equal(ts))
}

func TestBridgePublishError(t *testing.T) {
	b, pub := newTestBridge(t)
	pub.err = errors.New("broker gone")
	err := b.HandleSample(mustJSON(t, sampleAt(1, time.Time{})))
	assert.ErrorContains(t, err, "broker gone")
}

// sliceSource replays samples then reports io.EOF.
type sliceSource struct {
	samples []imu.Sample
	err     error
}

func (s *sliceSource) Next() (imu.Sample, error) {
	if len(s.samples) == 0 {
		if s.err != nil {
			return imu.Sample{}, s.err
		}
		return imu.Sample{}, io.EOF
	}
	next := s.samples[0]
	s.samples = s.samples[1:]
	return next, nil
}

func TestPublishSamples(t *testing.T) {
	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	src := &sliceSource{samples: []imu.Sample{
		sampleAt(0, ts),
		{AccelZ: 1e9}, // out of range, dropped
		sampleAt(1, ts.Add(20*time.Millisecond)),
	}}
	pub := &fakePublisher{}

	require.NoError(t, publishSamples(src, pub, "step/imu", nil))

	msgs := pub.onTopic("step/imu")
	require.Len(t, msgs, 2)
	var got imu.Sample
	require.NoError(t, json.Unmarshal(msgs[1].payload, &got))
	assert.Equal(t, sampleAt(1, ts.Add(20*time.Millisecond)), got)
}

func TestPublishSamplesTickAndErrors(t *testing.T) {
	tick := make(chan time.Time)
	close(tick)
	pub := &fakePublisher{}
	require.NoError(t, publishSamples(&sliceSource{samples: []imu.Sample{sampleAt(0, time.Time{})}}, pub, "t", tick))
	assert.Empty(t, pub.msgs)

	err := publishSamples(&sliceSource{err: errors.New("spi timeout")}, pub, "t", nil)
	assert.ErrorContains(t, err, "spi timeout")
}

func TestDisplayDataUpdate(t *testing.T) {
	var d DisplayData
	_, ok := d.snapshot()
	assert.False(t, ok)

	require.NoError(t, d.update([]byte(`{"step_count":12,"phase":"step_open"}`)))
	msg, ok := d.snapshot()
	assert.True(t, ok)
	assert.Equal(t, uint64(12), msg.StepCount)
	assert.Equal(t, detector.PhaseStepOpen, msg.Phase)

	assert.Error(t, d.update([]byte("nope")))
}
