// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Store holds the open sessions of a server. It is safe for concurrent use.
type Store struct {
	decider Decider
	disp    Dispatcher
	opts    Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty store whose sessions share d and disp.
func NewStore(d Decider, disp Dispatcher, opts Options) *Store {
	return &Store{decider: d, disp: disp, opts: opts, sessions: make(map[string]*Session)}
}

// Create opens a new session.
func (s *Store) Create() *Session {
	sess := NewSession(uuid.NewString(), s.decider, s.disp, s.opts)
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	log.Debugf("session %s opened", sess.ID())
	return sess
}

// Get returns the session with id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete closes the session with id and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	log.Debugf("session %s closed", id)
	return true
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the open session ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Prune closes sessions idle for longer than idle and returns how many it closed.
func (s *Store) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.LastActive().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		log.Infof("pruned %d idle sessions", n)
	}
	return n
}
