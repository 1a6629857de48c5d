// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/step_detector/internal/detector"
)

// wsError is sent back for any message that could not be processed.
type wsError struct {
	Error    string   `json:"error"`
	Required []string `json:"required,omitempty"`
	Status   string   `json:"status"`
}

// handleRealtime streams readings over a websocket. Each text message is one
// reading; each reply is a DetectionResponse or a wsError. ?session=<id>
// targets a session created through /sessions instead of the default one.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	sess := s.def
	if id := r.URL.Query().Get("session"); id != "" {
		s.mu.RLock()
		named, ok := s.sessions[id]
		s.mu.RUnlock()
		if !ok {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		sess = named
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	if !sess.Ready() {
		_ = conn.WriteJSON(wsError{Error: "Model not loaded", Status: "error"})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "model not loaded"))
		return
	}

	log.Printf("realtime: client connected from %s", r.RemoteAddr)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("realtime: read error: %v", err)
			} else {
				log.Printf("realtime: client disconnected")
			}
			return
		}

		reply := s.realtimeReply(r, sess, msg)
		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("realtime: write error: %v", err)
			return
		}
	}
}

func (s *Server) realtimeReply(r *http.Request, sess *detector.Session, msg []byte) any {
	var req readingRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return wsError{Error: "Invalid JSON format", Status: "error"}
	}
	sample, ok := req.sample()
	if !ok {
		return wsError{Error: missingFieldsMsg, Required: requiredFields, Status: "error"}
	}

	res, err := sess.Process(r.Context(), sample)
	if err != nil {
		return wsError{Error: fmt.Sprintf("Processing error: %v", err), Status: "error"}
	}
	if res.Event != nil {
		log.Printf("realtime: step %s, count: %d", res.Event.Kind, res.StepCount)
	}

	resp := newDetectionResponse(res)
	resp.Status = "success"
	return resp
}
