// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"net"

	"github.com/gin-gonic/gin"
)

// IsLocalhostDirect reports whether the request arrived on a loopback socket with no
// proxy headers. Forwarding headers are never trusted for this check.
func IsLocalhostDirect(c *gin.Context) bool {
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return false
	}

	// A proxy in front of tess means the real client is unknown.
	if c.GetHeader("X-Forwarded-For") != "" ||
		c.GetHeader("X-Real-IP") != "" ||
		c.GetHeader("Forwarded") != "" {
		return false
	}
	return true
}
