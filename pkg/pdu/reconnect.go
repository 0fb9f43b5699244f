// Powerdeck Core
// Copyright (c) 2026 The Powerdeck Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Powerdeck Core.
//
// Powerdeck Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Powerdeck Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Powerdeck Core.  If not, see <http://www.gnu.org/licenses/>.

package pdu

import (
	"math/rand"
	"time"
)

const (
	reconnectBase      = time.Second
	reconnectMax       = 30 * time.Second
	reconnectJitterMax = 500 * time.Millisecond
	// maxReconnectAttempts bounds automatic reconnects. Beyond it the
	// session reports a terminal status and waits for manual intervention.
	maxReconnectAttempts = 5
)

// reconnector computes exponential backoff with jitter for reconnect
// attempts. The attempt counter resets on any successful post-login
// connection.
type reconnector struct {
	jitter   func() time.Duration
	attempts int
}

func newReconnector() *reconnector {
	return &reconnector{
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(reconnectJitterMax)))
		},
	}
}

// NextDelay returns the backoff delay for the next attempt and whether
// another attempt is allowed at all.
func (r *reconnector) NextDelay() (time.Duration, bool) {
	if r.attempts >= maxReconnectAttempts {
		return 0, false
	}

	delay := reconnectBase << r.attempts
	if delay > reconnectMax {
		delay = reconnectMax
	}
	r.attempts++
	return delay + r.jitter(), true
}

// Attempts returns the number of attempts consumed since the last reset.
func (r *reconnector) Attempts() int {
	return r.attempts
}

// Reset clears the attempt counter.
func (r *reconnector) Reset() {
	r.attempts = 0
}
