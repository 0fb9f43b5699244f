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

// Package transport provides the byte-stream abstraction the session core
// runs on: reliable in-order delivery with explicit connect, data, closed,
// error and timeout events.
package transport

// EventKind identifies the type of a transport event.
type EventKind int

const (
	// EventConnected is emitted once a connection is established.
	EventConnected EventKind = iota
	// EventData carries a chunk of received bytes. Chunk boundaries are
	// arbitrary and carry no protocol meaning.
	EventData
	// EventClosed is emitted when the remote end closes the connection.
	EventClosed
	// EventError is emitted on a connect or read failure.
	EventError
	// EventTimeout is emitted when no data arrives within the read timeout.
	EventTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventData:
		return "data"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Event is a single transport lifecycle or data event.
type Event struct {
	Err  error
	Data []byte
	Kind EventKind
}

// Transport is a connection to one remote endpoint. Connect and Close may be
// called from any goroutine; events are delivered on the Events channel in
// the order they occurred.
type Transport interface {
	// Connect starts establishing the connection. The result arrives on the
	// Events channel as EventConnected or EventError.
	Connect()
	// Send writes bytes to the connection.
	Send(data []byte) error
	// Close tears down the connection without emitting a closed event.
	Close() error
	// Connected reports whether the connection is currently established.
	Connected() bool
	// Events returns the channel carrying this transport's events.
	Events() <-chan Event
}
