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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startServer returns a listening address and a channel delivering each
// accepted connection.
func startServer(t *testing.T) (string, <-chan net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	conns := make(chan net.Conn, 1)
	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			conns <- conn
		}
	}()
	return ln.Addr().String(), conns
}

func waitEvent(t *testing.T, tr *TCP, want EventKind) Event {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-tr.Events():
			if ev.Kind == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func newTestTCP(t *testing.T, addr string, readTimeout time.Duration) *TCP {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := net.LookupPort("tcp", portStr)
	require.NoError(t, err)

	tr := NewTCP(host, port, readTimeout)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTCPConnectAndReceive(t *testing.T) {
	t.Parallel()

	addr, conns := startServer(t)
	tr := newTestTCP(t, addr, 0)

	tr.Connect()
	waitEvent(t, tr, EventConnected)
	assert.True(t, tr.Connected())

	server := <-conns
	defer func() { _ = server.Close() }()
	_, err := server.Write([]byte("Username:"))
	require.NoError(t, err)

	ev := waitEvent(t, tr, EventData)
	assert.Equal(t, "Username:", string(ev.Data))
}

func TestTCPSend(t *testing.T) {
	t.Parallel()

	addr, conns := startServer(t)
	tr := newTestTCP(t, addr, 0)

	tr.Connect()
	waitEvent(t, tr, EventConnected)
	server := <-conns
	defer func() { _ = server.Close() }()

	require.NoError(t, tr.Send([]byte("admin\r\n")))

	buf := make([]byte, 32)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "admin\r\n", string(buf[:n]))
}

func TestTCPSendWhileDisconnected(t *testing.T) {
	t.Parallel()

	tr := NewTCP("127.0.0.1", 1, 0)
	err := tr.Send([]byte("data"))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestTCPPeerCloseEmitsClosed(t *testing.T) {
	t.Parallel()

	addr, conns := startServer(t)
	tr := newTestTCP(t, addr, 0)

	tr.Connect()
	waitEvent(t, tr, EventConnected)
	server := <-conns
	_ = server.Close()

	waitEvent(t, tr, EventClosed)
	assert.False(t, tr.Connected())
}

func TestTCPDialFailureEmitsError(t *testing.T) {
	t.Parallel()

	// a listener that is closed immediately leaves a port nothing accepts on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tr := newTestTCP(t, addr, 0)
	tr.Connect()

	ev := waitEvent(t, tr, EventError)
	require.Error(t, ev.Err)
	assert.False(t, tr.Connected())
}

func TestTCPReadTimeoutEmitsTimeout(t *testing.T) {
	t.Parallel()

	addr, conns := startServer(t)
	tr := newTestTCP(t, addr, 100*time.Millisecond)

	tr.Connect()
	waitEvent(t, tr, EventConnected)
	server := <-conns
	defer func() { _ = server.Close() }()

	// the server stays silent past the read deadline
	waitEvent(t, tr, EventTimeout)
	assert.False(t, tr.Connected())
}

func TestTCPCloseIsSilent(t *testing.T) {
	t.Parallel()

	addr, conns := startServer(t)
	tr := newTestTCP(t, addr, 0)

	tr.Connect()
	waitEvent(t, tr, EventConnected)
	server := <-conns
	defer func() { _ = server.Close() }()

	require.NoError(t, tr.Close())
	assert.False(t, tr.Connected())

	// deliberate close emits no event
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected %s event after deliberate close", ev.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTCPReconnectReplacesConnection(t *testing.T) {
	t.Parallel()

	addr, conns := startServer(t)
	tr := newTestTCP(t, addr, 0)

	tr.Connect()
	waitEvent(t, tr, EventConnected)
	first := <-conns
	defer func() { _ = first.Close() }()

	tr.Connect()
	waitEvent(t, tr, EventConnected)
	second := <-conns
	defer func() { _ = second.Close() }()

	// sends go to the new connection
	require.NoError(t, tr.Send([]byte("ping")))
	buf := make([]byte, 8)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := second.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}
