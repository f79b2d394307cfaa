// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/util"
	"golang.org/x/crypto/bcrypt"
)

// authMiddleware checks the bearer token against the bcrypt-hashed server secret.
// Without a configured secret only direct loopback clients are served.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := s.cfg.Server.SecretKey
		if hash == "" {
			if !util.IsLocalhostDirect(c) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "remote access requires server.secret-key"})
				return
			}
			c.Next()
			return
		}

		token := bearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			log.Warnf("rejected api request from %s (authorization %s)", c.ClientIP(), util.MaskAuthorizationHeader("Bearer "+token))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret key"})
			return
		}
		c.Next()
	}
}

// bearerToken reads the Authorization header, or the token query parameter that
// browser WebSocket clients use.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// sameHostOrigin accepts WebSocket upgrades without an Origin header and from pages
// served by the same host.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
