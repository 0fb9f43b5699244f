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

package mocks

import (
	"sync"

	"github.com/PowerdeckProject/powerdeck-core/pkg/transport"
)

// FakeTransport is a controllable transport.Transport for tests. Events are
// fed in by the test; sent payloads are recorded for inspection.
type FakeTransport struct {
	events chan transport.Event
	// SendErr makes every Send fail.
	SendErr error
	// ConnectErr makes every Connect emit an error event instead of
	// connecting, simulating a failing dial.
	ConnectErr error
	sent       [][]byte
	mu         sync.Mutex
	connected  bool
	closed     bool
	dials      int
}

// NewFakeTransport returns a fake that buffers up to 64 events, matching the
// real TCP transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		events: make(chan transport.Event, 64),
	}
}

// Connect records the attempt and emits a connected event immediately, or an
// error event when ConnectErr is set.
func (f *FakeTransport) Connect() {
	f.mu.Lock()
	f.dials++
	if f.ConnectErr != nil {
		err := f.ConnectErr
		f.mu.Unlock()
		f.events <- transport.Event{Kind: transport.EventError, Err: err}
		return
	}
	f.connected = true
	f.mu.Unlock()
	f.events <- transport.Event{Kind: transport.EventConnected}
}

func (f *FakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	if !f.connected {
		return transport.ErrNotConnected
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.sent = append(f.sent, buf)
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closed = true
	return nil
}

func (f *FakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) Events() <-chan transport.Event {
	return f.events
}

// Feed queues data as a received event.
func (f *FakeTransport) Feed(data string) {
	f.events <- transport.Event{Kind: transport.EventData, Data: []byte(data)}
}

// Drop simulates the remote end closing the connection.
func (f *FakeTransport) Drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- transport.Event{Kind: transport.EventClosed}
}

// Fail simulates a socket error.
func (f *FakeTransport) Fail(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- transport.Event{Kind: transport.EventError, Err: err}
}

// Timeout simulates a read deadline expiring.
func (f *FakeTransport) Timeout() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- transport.Event{Kind: transport.EventTimeout}
}

// Sent returns copies of every payload passed to Send, in order.
func (f *FakeTransport) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentLines returns sent payloads as strings.
func (f *FakeTransport) SentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, b := range f.sent {
		out = append(out, string(b))
	}
	return out
}

// ClearSent discards the recorded payloads.
func (f *FakeTransport) ClearSent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// Dials reports how many times Connect was called.
func (f *FakeTransport) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// Closed reports whether Close was called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
