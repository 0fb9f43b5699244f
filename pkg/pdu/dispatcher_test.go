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
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherHarness struct {
	clock   *clockwork.FakeClock
	sched   *scheduler
	disp    *dispatcher
	sent    []string
	sendErr error
}

func newDispatcherHarness() *dispatcherHarness {
	h := &dispatcherHarness{clock: clockwork.NewFakeClock()}
	h.sched = newScheduler(h.clock)
	h.disp = newDispatcher(h.clock, h.sched, func(text string) error {
		if h.sendErr != nil {
			return h.sendErr
		}
		h.sent = append(h.sent, text)
		return nil
	})
	return h
}

// step advances the fake clock in small increments so callbacks that arm new
// timers get a chance to run between increments.
func (h *dispatcherHarness) step(total time.Duration) {
	const inc = 100 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < total; elapsed += inc {
		h.clock.Advance(inc)
		drainFired(h.sched)
	}
}

func TestDispatcherFIFOWithSingleOutstanding(t *testing.T) {
	t.Parallel()

	h := newDispatcherHarness()
	h.disp.Enqueue([]Command{
		{Text: "first", Sanitize: true},
		{Text: "second", Sanitize: true},
		{Text: "third", Sanitize: true},
	})
	require.Equal(t, 3, h.disp.QueueLen())

	h.disp.ProcessNext()
	assert.Equal(t, []string{"first"}, h.sent)
	assert.True(t, h.disp.Awaiting())

	// no overlap: head stays queued until the response arrives
	h.disp.ProcessNext()
	assert.Equal(t, []string{"first"}, h.sent)

	h.disp.ResponseReceived()
	h.disp.ProcessNext()
	assert.Equal(t, []string{"first", "second"}, h.sent)

	h.disp.ResponseReceived()
	h.disp.ProcessNext()
	assert.Equal(t, []string{"first", "second", "third"}, h.sent)
	assert.Equal(t, 0, h.disp.QueueLen())
}

func TestDispatcherDispatchReplacesQueue(t *testing.T) {
	t.Parallel()

	h := newDispatcherHarness()
	h.disp.Enqueue([]Command{
		{Text: "poll-a", Sanitize: true},
		{Text: "poll-b", Sanitize: true},
	})
	h.disp.ProcessNext()
	require.Equal(t, []string{"poll-a"}, h.sent)

	h.disp.Dispatch(Command{Text: "power outlets 1 on", Sanitize: true}, true)
	// still awaiting poll-a's response; the user command waits its turn
	require.Equal(t, []string{"poll-a"}, h.sent)

	h.disp.ResponseReceived()
	h.disp.ProcessNext()
	assert.Equal(t, []string{"poll-a", "power outlets 1 on"}, h.sent)
	// poll-b was dropped by the queue replacement
	assert.Equal(t, 0, h.disp.QueueLen())
}

func TestDispatcherRetriesThenGivesUp(t *testing.T) {
	t.Parallel()

	h := newDispatcherHarness()
	var exhausted bool
	var exhaustedUser bool
	retries := 0
	h.disp.onRetry = func() { retries++ }
	h.disp.onRetriesExhausted = func(userInitiated bool) {
		exhausted = true
		exhaustedUser = userInitiated
	}

	h.disp.Dispatch(Command{Text: "power outlets 1 on", Sanitize: true}, true)
	require.Equal(t, 1, len(h.sent))

	h.step(60 * time.Second)

	assert.True(t, exhausted)
	assert.True(t, exhaustedUser)
	assert.Positive(t, retries)
	assert.False(t, h.disp.Awaiting())
	// every send was a retry of the same command text
	for _, sent := range h.sent {
		assert.Equal(t, "power outlets 1 on", sent)
	}
	assert.Greater(t, len(h.sent), 1)
}

func TestDispatcherResponseStopsRetries(t *testing.T) {
	t.Parallel()

	h := newDispatcherHarness()
	h.disp.onRetriesExhausted = func(bool) { t.Error("retries should not exhaust") }

	h.disp.Dispatch(Command{Text: "show outlets", Sanitize: true}, false)
	h.step(11 * time.Second) // first timeout fires, one retry scheduled
	h.disp.ResponseReceived()

	sentBefore := len(h.sent)
	h.step(60 * time.Second)
	assert.Equal(t, sentBefore, len(h.sent))
}

func TestDispatcherRejectsUnsafeText(t *testing.T) {
	t.Parallel()

	h := newDispatcherHarness()
	var failErr error
	h.disp.onSendFailure = func(_ bool, err error) { failErr = err }

	h.disp.Dispatch(Command{Text: "power outlets 1 on; reboot", Sanitize: true}, true)

	assert.Empty(t, h.sent)
	assert.False(t, h.disp.Awaiting())
	require.ErrorIs(t, failErr, ErrUnsafeCommand)
}

func TestDispatcherUnsanitizedCredentialPassthrough(t *testing.T) {
	t.Parallel()

	h := newDispatcherHarness()
	// passwords may contain anything; they bypass the charset check
	h.disp.Dispatch(Command{Text: "p@$$w0rd!", Sanitize: false}, false)
	assert.Equal(t, []string{"p@$$w0rd!"}, h.sent)
}

func TestDispatcherSendFailure(t *testing.T) {
	t.Parallel()

	h := newDispatcherHarness()
	h.sendErr = errors.New("broken pipe")
	var gotUser bool
	var gotErr error
	h.disp.onSendFailure = func(userInitiated bool, err error) {
		gotUser = userInitiated
		gotErr = err
	}

	h.disp.Dispatch(Command{Text: "show outlets", Sanitize: true}, true)
	assert.False(t, h.disp.Awaiting())
	assert.True(t, gotUser)
	require.ErrorContains(t, gotErr, "broken pipe")
}

func TestDispatcherReset(t *testing.T) {
	t.Parallel()

	h := newDispatcherHarness()
	h.disp.Enqueue([]Command{{Text: "a", Sanitize: true}, {Text: "b", Sanitize: true}})
	h.disp.ProcessNext()
	require.True(t, h.disp.Awaiting())

	h.disp.Reset()
	assert.False(t, h.disp.Awaiting())
	assert.Equal(t, 0, h.disp.QueueLen())

	// the armed response timeout died with the reset
	h.step(30 * time.Second)
	assert.Equal(t, []string{"a"}, h.sent)
}
