// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package keypool

import "time"

// Backoff computes cooldowns as min(Base * 2^failures, Max).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff starts at one second and caps at five minutes.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 5 * time.Minute}
}

func (b Backoff) normalized() Backoff {
	if b.Base <= 0 {
		b.Base = time.Second
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	return b
}

// Duration returns the cooldown after the given number of consecutive failures.
func (b Backoff) Duration(failures int) time.Duration {
	b = b.normalized()
	if failures < 0 {
		failures = 0
	}
	d := b.Base
	for i := 0; i < failures; i++ {
		if d >= b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	return min(d, b.Max)
}
