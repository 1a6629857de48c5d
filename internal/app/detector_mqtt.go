// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relabs-tech/step_detector/internal/classifier"
	"github.com/relabs-tech/step_detector/internal/config"
	"github.com/relabs-tech/step_detector/internal/detector"
)

// StepCountMessage is published, retained, on TOPIC_STEP_COUNT after every
// accepted reading that changes the count or phase.
type StepCountMessage struct {
	StepCount uint64         `json:"step_count"`
	Phase     detector.Phase `json:"phase"`
	Time      time.Time      `json:"time"`
}

// Bridge feeds samples arriving over MQTT into one detector session and
// publishes step events and the running count.
type Bridge struct {
	session  *detector.Session
	pub      publisher
	cfg      *config.Config
	timeout  time.Duration
	lastSent *StepCountMessage
}

func newBridge(cfg *config.Config, sess *detector.Session, pub publisher) *Bridge {
	return &Bridge{
		session: sess,
		pub:     pub,
		cfg:     cfg,
		timeout: time.Duration(cfg.ClassifierTimeoutMS) * time.Millisecond,
	}
}

// sampleMessage is a reading as it arrives on the samples topic. The
// producer stamps it; a zero timestamp is filled in by the session.
type sampleMessage struct {
	readingRequest
	Timestamp time.Time `json:"timestamp"`
}

var errMissingFields = errors.New("missing sensor channels")

// HandleSample decodes one sample payload and runs it through the session.
// Rejected samples are returned as errors; nothing is published for them.
func (b *Bridge) HandleSample(payload []byte) error {
	var in sampleMessage
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("sample unmarshal: %w", err)
	}
	if missing := in.missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingFields, strings.Join(missing, ", "))
	}
	s, _ := in.sample()
	s.Timestamp = in.Timestamp

	ctx, cancel := context.WithTimeout(context.Background(), 2*b.timeout)
	defer cancel()
	res, err := b.session.Process(ctx, s)
	if err != nil {
		return err
	}

	if res.Event != nil {
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("event marshal: %w", err)
		}
		if err := b.pub.publish(b.cfg.TopicStepEvents, false, data); err != nil {
			return fmt.Errorf("publish %s: %w", b.cfg.TopicStepEvents, err)
		}
	}

	msg := StepCountMessage{StepCount: res.StepCount, Phase: b.session.Phase(), Time: res.Timestamp}
	if b.lastSent != nil && b.lastSent.StepCount == msg.StepCount && b.lastSent.Phase == msg.Phase {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("count marshal: %w", err)
	}
	if err := b.pub.publish(b.cfg.TopicStepCount, true, data); err != nil {
		return fmt.Errorf("publish %s: %w", b.cfg.TopicStepCount, err)
	}
	b.lastSent = &msg
	return nil
}

// RunDetectorMQTT subscribes to TOPIC_IMU and runs detection until SIGINT or
// SIGTERM.
func RunDetectorMQTT(cfg *config.Config) error {
	model, err := classifier.New(cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	sess, err := detector.NewSession(cfg.Thresholds, cfg.WindowSize, model)
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDetector, "detector")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	bridge := newBridge(cfg, sess, mqttPublisher{client: client})

	// paho runs handlers on its own goroutine, one message at a time.
	if err := subscribe(client, cfg.TopicIMU, "detector", func(payload []byte) {
		if err := bridge.HandleSample(payload); err != nil {
			log.Printf("detector: sample rejected: %v", err)
		}
	}); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sum := sess.Summary()
	log.Printf("detector: shutting down, steps=%d readings=%d duration=%v",
		sum.StepCount, sum.TotalReadings, sum.SessionDuration.Round(time.Second))
	return nil
}
