// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package brain

import (
	"github.com/traylinx/tess/internal/keypool"
	"github.com/traylinx/tess/internal/util"
)

// ProviderStatus describes one provider and its credentials with keys masked.
type ProviderStatus struct {
	ID          string               `json:"id"`
	Type        string               `json:"type"`
	Model       string               `json:"model"`
	Priority    int                  `json:"priority"`
	Available   int                  `json:"available"`
	Credentials []keypool.Credential `json:"credentials"`
}

// Status reports every provider in failover order.
func (b *Brain) Status() []ProviderStatus {
	byProvider := make(map[string][]keypool.Credential)
	for _, c := range b.pool.Snapshot(util.HideAPIKey) {
		byProvider[c.ProviderID] = append(byProvider[c.ProviderID], c)
	}
	out := make([]ProviderStatus, 0, len(b.providers))
	for _, p := range b.providers {
		out = append(out, ProviderStatus{
			ID:          p.ID,
			Type:        p.Type,
			Model:       p.Model,
			Priority:    p.Priority,
			Available:   b.pool.Available(p.ID),
			Credentials: byProvider[p.ID],
		})
	}
	return out
}
