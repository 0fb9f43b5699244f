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
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// responseTimeout is the budget for the terminal prompt to arrive after
	// a command is sent.
	responseTimeout = 10 * time.Second
	// retryDelay is the fixed delay between retry attempts.
	retryDelay = 2 * time.Second
	// maxRetryAttempts bounds retries of the last dispatched command.
	maxRetryAttempts = 3
	// retryBudget abandons retries after this much wall-clock time,
	// regardless of attempts remaining.
	retryBudget = 15 * time.Second
)

// dispatcher serializes outbound commands: FIFO order, at most one
// sent-but-unacknowledged command at a time. There are no correlation IDs on
// the wire; this non-overlap is what makes response parsing unambiguous.
//
// All methods run inside the owning session's event loop; no locking.
type dispatcher struct {
	clock              clockwork.Clock
	sched              *scheduler
	write              func(text string) error
	onRetry            func()
	onRetriesExhausted func(lastUserInitiated bool)
	onSendFailure      func(userInitiated bool, err error)
	queue              []queuedCommand
	lastSent           string
	retryStarted       time.Time
	timeoutTimer       timerID
	retryAttempts      int
	awaiting           bool
	lastUserInitiated  bool
}

type queuedCommand struct {
	cmd           Command
	userInitiated bool
}

func newDispatcher(
	clock clockwork.Clock,
	sched *scheduler,
	write func(text string) error,
) *dispatcher {
	return &dispatcher{
		clock: clock,
		sched: sched,
		write: write,
	}
}

// Enqueue replaces the queue wholesale. Polling submits a fresh fixed list
// each cycle; it never appends.
func (d *dispatcher) Enqueue(cmds []Command) {
	d.queue = make([]queuedCommand, len(cmds))
	for i, cmd := range cmds {
		d.queue[i] = queuedCommand{cmd: cmd}
	}
}

// QueueLen returns the number of queued, not-yet-sent commands.
func (d *dispatcher) QueueLen() int {
	return len(d.queue)
}

// Awaiting reports whether a sent command is still unacknowledged.
func (d *dispatcher) Awaiting() bool {
	return d.awaiting
}

// LastSent returns the text of the last successfully dispatched command.
func (d *dispatcher) LastSent() string {
	return d.lastSent
}

// ProcessNext sends the head of the queue. No-op while a response is
// outstanding or the queue is empty.
func (d *dispatcher) ProcessNext() {
	if d.awaiting || len(d.queue) == 0 {
		return
	}
	head := d.queue[0]
	d.queue = d.queue[1:]
	d.send(head.cmd, head.userInitiated)
}

// Dispatch replaces the queue with a single user-initiated command. It is
// sent immediately if the line is free, otherwise as soon as the
// outstanding response arrives.
func (d *dispatcher) Dispatch(cmd Command, userInitiated bool) {
	d.queue = []queuedCommand{{cmd: cmd, userInitiated: userInitiated}}
	d.ProcessNext()
}

func (d *dispatcher) send(cmd Command, userInitiated bool) {
	if cmd.Sanitize {
		if err := ValidateCommandText(cmd.Text); err != nil {
			log.Error().Str("command", cmd.Text).Msg("rejected unsafe command text")
			if d.onSendFailure != nil {
				d.onSendFailure(userInitiated, err)
			}
			return
		}
	}

	if err := d.write(cmd.Text); err != nil {
		log.Error().Err(err).Str("command", cmd.Text).Msg("failed to send command")
		if d.onSendFailure != nil {
			d.onSendFailure(userInitiated, err)
		}
		return
	}

	d.awaiting = true
	d.lastSent = cmd.Text
	d.lastUserInitiated = userInitiated
	d.retryAttempts = 0
	d.armResponseTimeout()
}

// ResponseReceived acknowledges the outstanding command and clears retry
// state.
func (d *dispatcher) ResponseReceived() {
	d.sched.Cancel(d.timeoutTimer)
	d.timeoutTimer = 0
	d.awaiting = false
	d.retryAttempts = 0
}

// Reset drops the queue and all in-flight state, e.g. on disconnect.
func (d *dispatcher) Reset() {
	d.sched.Cancel(d.timeoutTimer)
	d.timeoutTimer = 0
	d.queue = nil
	d.awaiting = false
	d.retryAttempts = 0
}

func (d *dispatcher) armResponseTimeout() {
	d.sched.Cancel(d.timeoutTimer)
	d.timeoutTimer = d.sched.After("responseTimeout", responseTimeout, d.handleTimeout)
}

// handleTimeout retries the last dispatched command string with a fixed
// inter-attempt delay, giving up after the attempt bound or the wall-clock
// budget, whichever comes first.
func (d *dispatcher) handleTimeout() {
	if !d.awaiting {
		return
	}

	if d.retryAttempts == 0 {
		d.retryStarted = d.clock.Now()
	}

	budgetSpent := d.clock.Now().Sub(d.retryStarted) > retryBudget
	if d.retryAttempts >= maxRetryAttempts || budgetSpent {
		log.Warn().
			Str("command", d.lastSent).
			Int("attempts", d.retryAttempts).
			Msg("giving up on command response")
		d.awaiting = false
		d.retryAttempts = 0
		if d.onRetriesExhausted != nil {
			d.onRetriesExhausted(d.lastUserInitiated)
		}
		return
	}

	d.retryAttempts++
	attempt := d.retryAttempts
	log.Debug().
		Str("command", d.lastSent).
		Int("attempt", attempt).
		Msg("response timeout, scheduling retry")
	if d.onRetry != nil {
		d.onRetry()
	}
	d.timeoutTimer = d.sched.After("retryDelay", retryDelay, func() {
		if !d.awaiting {
			return
		}
		if err := d.write(d.lastSent); err != nil {
			log.Error().Err(err).Msg("retry send failed")
			d.awaiting = false
			if d.onSendFailure != nil {
				d.onSendFailure(d.lastUserInitiated, err)
			}
			return
		}
		d.armResponseTimeout()
	})
}
