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

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
	readChunkSize       = 4096
	eventBufferSize     = 64
)

// ErrNotConnected is returned by Send when no connection is established.
var ErrNotConnected = errors.New("transport not connected")

// Dialer opens a TCP connection (for mocking in tests).
type Dialer func(addr string, timeout time.Duration) (net.Conn, error)

// DefaultDialer is the default dialer that opens real TCP connections.
func DefaultDialer(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}

// TCP is a Transport over a plain TCP connection. A zero ReadTimeout
// disables idle timeout detection.
type TCP struct {
	dial        Dialer
	conn        net.Conn
	events      chan Event
	addr        string
	dialTimeout time.Duration
	readTimeout time.Duration
	generation  int
	mu          syncutil.Mutex
	connected   bool
}

// NewTCP creates a TCP transport for host:port using the default dialer.
func NewTCP(host string, port int, readTimeout time.Duration) *TCP {
	return &TCP{
		addr:        net.JoinHostPort(host, strconv.Itoa(port)),
		dial:        DefaultDialer,
		dialTimeout: defaultDialTimeout,
		readTimeout: readTimeout,
		events:      make(chan Event, eventBufferSize),
	}
}

// SetDialer replaces the dialer. Must be called before Connect.
func (t *TCP) SetDialer(d Dialer) {
	t.dial = d
}

func (t *TCP) Events() <-chan Event {
	return t.events
}

func (t *TCP) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Connect dials in the background and reports the outcome on the events
// channel. A connection already in place is torn down first.
func (t *TCP) Connect() {
	t.mu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
		t.connected = false
	}
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	go func() {
		conn, err := t.dial(t.addr, t.dialTimeout)
		if err != nil {
			t.emit(Event{Kind: EventError, Err: err})
			return
		}

		t.mu.Lock()
		if gen != t.generation {
			// Close was called while dialing
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.connected = true
		t.mu.Unlock()

		t.emit(Event{Kind: EventConnected})
		t.readLoop(conn, gen)
	}()
}

func (t *TCP) readLoop(conn net.Conn, gen int) {
	buf := make([]byte, readChunkSize)
	for {
		if t.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
				log.Warn().Err(err).Msg("transport: failed to set read deadline")
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.emit(Event{Kind: EventData, Data: data})
		}
		if err == nil {
			continue
		}

		t.mu.Lock()
		stale := gen != t.generation
		if !stale {
			t.connected = false
			t.conn = nil
		}
		t.mu.Unlock()
		_ = conn.Close()
		if stale {
			// Connection was replaced or closed deliberately
			return
		}

		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			t.emit(Event{Kind: EventTimeout, Err: err})
		case errors.Is(err, net.ErrClosed):
			t.emit(Event{Kind: EventClosed})
		default:
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.emit(Event{Kind: EventTimeout, Err: err})
			} else if errors.Is(err, io.EOF) {
				t.emit(Event{Kind: EventClosed})
			} else {
				t.emit(Event{Kind: EventError, Err: err})
			}
		}
		return
	}
}

// Send writes data to the connection with a write deadline.
func (t *TCP) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to write to connection: %w", err)
	}
	return nil
}

// Close tears down the connection. No closed event is emitted; callers that
// close deliberately already know.
func (t *TCP) Close() error {
	t.mu.Lock()
	t.generation++
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}
	return nil
}

func (t *TCP) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		log.Warn().Str("kind", ev.Kind.String()).Msg("transport: event buffer full, dropping event")
	}
}
