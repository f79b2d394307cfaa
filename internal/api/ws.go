// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/agent"
)

// Frame types exchanged on a session socket.
const (
	FrameCommand = "command"
	FrameClear   = "clear"
	FrameOutput  = "output"
	FrameReply   = "reply"
	FrameCleared = "cleared"
	FrameError   = "error"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 64 * 1024
)

// Frame is one JSON message on the socket. Clients send command and clear frames; the
// server answers with output lines as they are produced, then a reply.
type Frame struct {
	Type  string       `json:"type"`
	Text  string       `json:"text,omitempty"`
	Line  string       `json:"line,omitempty"`
	Reply *agent.Reply `json:"reply,omitempty"`
	Error string       `json:"error,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (s *Server) handleWebSocket(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	raw, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go keepAlive(ctx, conn)

	raw.SetReadLimit(wsMaxMessage)
	_ = raw.SetReadDeadline(time.Now().Add(wsPongTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("websocket closed for session %s: %v", sess.ID(), err)
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(wsPongTimeout))

		var in Frame
		if err := json.Unmarshal(data, &in); err != nil {
			_ = conn.send(Frame{Type: FrameError, Error: "invalid frame"})
			continue
		}
		switch in.Type {
		case FrameCommand:
			if strings.TrimSpace(in.Text) == "" {
				_ = conn.send(Frame{Type: FrameError, Error: "empty command"})
				continue
			}
			reply := sess.Handle(ctx, in.Text, func(line string) {
				if err := conn.send(Frame{Type: FrameOutput, Line: line}); err != nil {
					log.Debugf("dropping output line: %v", err)
				}
			})
			_ = raw.SetReadDeadline(time.Now().Add(wsPongTimeout))
			if err := conn.send(Frame{Type: FrameReply, Reply: &reply}); err != nil {
				return
			}
		case FrameClear:
			sess.Clear()
			_ = conn.send(Frame{Type: FrameCleared})
		default:
			_ = conn.send(Frame{Type: FrameError, Error: "unknown frame type: " + in.Type})
		}
	}
}

func keepAlive(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
