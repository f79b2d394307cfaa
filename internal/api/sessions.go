// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/tess/internal/agent"
)

type sessionView struct {
	ID         string    `json:"id"`
	Created    time.Time `json:"created"`
	LastActive time.Time `json:"last_active"`
}

func viewOf(s *agent.Session) sessionView {
	return sessionView{ID: s.ID(), Created: s.Created(), LastActive: s.LastActive()}
}

type commandRequest struct {
	Text string `json:"text"`
}

type commandResponse struct {
	agent.Reply
	Output []string `json:"output"`
}

func (s *Server) session(c *gin.Context) (*agent.Session, bool) {
	sess, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	}
	return sess, ok
}

func (s *Server) handleCreateSession(c *gin.Context) {
	c.JSON(http.StatusCreated, viewOf(s.store.Create()))
}

func (s *Server) handleListSessions(c *gin.Context) {
	ids := s.store.IDs()
	out := make([]sessionView, 0, len(ids))
	for _, id := range ids {
		if sess, ok := s.store.Get(id); ok {
			out = append(out, viewOf(sess))
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if !s.store.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClear(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) handleHistory(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": sess.History()})
}

// handleCommand runs one command and returns the reply along with every output line
// the action produced.
func (s *Server) handleCommand(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"text\": \"<command>\"}"})
		return
	}

	var (
		mu     sync.Mutex
		output = []string{}
	)
	reply := sess.Handle(c.Request.Context(), req.Text, func(line string) {
		mu.Lock()
		output = append(output, line)
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	c.JSON(http.StatusOK, commandResponse{Reply: reply, Output: output})
}
