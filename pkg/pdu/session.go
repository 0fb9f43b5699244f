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

// Package pdu implements a stateful client session for the prompt-driven
// remote-management CLI of a power distribution unit. One Session owns one
// TCP connection and everything layered on it: the login handshake, command
// queuing, response parsing, confirmation-gated execution, polling,
// reconnection and cross-session cycle broadcasts.
package pdu

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/PowerdeckProject/powerdeck-core/pkg/controls"
	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers/syncutil"
	"github.com/PowerdeckProject/powerdeck-core/pkg/service/broker"
	"github.com/PowerdeckProject/powerdeck-core/pkg/transport"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// credentialDelay paces credential writes; the remote CLI drops input
	// that arrives too soon after its challenge.
	credentialDelay = 500 * time.Millisecond
	// firstPollGrace delays the first poll after a successful login.
	firstPollGrace = 3 * time.Second
	// confirmTimeout auto-cancels an armed command the user never confirms.
	// Re-arming restarts it.
	confirmTimeout = 10 * time.Second
	// safetyTimeout force-cancels regardless of confirmTimeout restarts, so
	// rapid re-toggling can never hold a confirmation open forever.
	safetyTimeout = 30 * time.Second
	// serverConfirmTimeout bounds an unanswered server-side y/n prompt;
	// expiry answers no.
	serverConfirmTimeout = 10 * time.Second
	// postGroupCooldownWindow skips individual outlet queries after a group
	// response, which already carried per-outlet truth.
	postGroupCooldownWindow = 5 * time.Second
	// revertGraceWindow suppresses parser outlet updates while a revert
	// settles, so an in-flight status response cannot immediately undo it.
	revertGraceWindow = 2 * time.Second

	intentBufferSize  = 16
	requestBufferSize = 16
)

// Config describes one PDU endpoint session.
type Config struct {
	Name                   string
	Username               string
	Password               string
	Prompt                 string
	PollInterval           time.Duration
	LegacyBroadcastPowerOn bool
}

// Session is the per-connection protocol state machine. All mutable state is
// owned by the Run loop goroutine; external callers interact through the
// Request* methods, which marshal work into that loop.
type Session struct {
	clock clockwork.Clock
	tr    transport.Transport
	panel controls.Panel
	brk   *broker.Broker

	sched  *scheduler
	parser *Parser
	disp   *dispatcher
	recon  *reconnector

	cfg Config
	id  string

	flags   sessionFlags
	outlets [NumOutlets + 1]OutletState
	groups  [NumGroups + 1]GroupState

	pending         *PendingCommand
	pendingExecuted bool
	op              *operationRecord

	confirmTimer       timerID
	safetyTimer        timerID
	serverConfirmTimer timerID
	cooldownTimer      timerID
	revertTimer        timerID
	settleTimer        timerID
	pollTimer          timerID
	reconnectTimer     timerID
	credentialTimer    timerID

	connected     bool
	authenticated bool
	authFailed    bool
	usernameSent  bool
	passwordSent  bool
	meantToStayUp bool

	pollSkips  int
	pollHalted bool

	pendingCycleGroup int
	settleGroup       string
	lastBroadcast     map[string]time.Time
	intents           <-chan broker.Intent
	subID             int

	reqs    chan func()
	stats   Stats
	statsMu syncutil.RWMutex
}

// NewSession creates a session for one PDU endpoint. A nil clock means the
// real clock; a nil broker disables cross-session broadcasts.
func NewSession(
	cfg Config,
	tr transport.Transport,
	panel controls.Panel,
	brk *broker.Broker,
	clock clockwork.Clock,
) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Session{
		cfg:           cfg,
		id:            uuid.New().String(),
		clock:         clock,
		tr:            tr,
		panel:         panel,
		brk:           brk,
		recon:         newReconnector(),
		lastBroadcast: make(map[string]time.Time),
		reqs:          make(chan func(), requestBufferSize),
	}
	s.sched = newScheduler(clock)
	s.parser = NewParser(cfg.Prompt)
	s.disp = newDispatcher(clock, s.sched, s.writeLine)
	s.disp.onRetry = func() {
		s.bump(func(st *Stats) { st.Retries++ })
	}
	s.disp.onRetriesExhausted = s.handleRetriesExhausted
	s.disp.onSendFailure = s.handleSendFailure

	if brk != nil {
		s.intents, s.subID = brk.Subscribe(intentBufferSize)
	}

	for i := 1; i <= NumOutlets; i++ {
		s.outlets[i] = OutletState{
			Index:    i,
			Name:     "Outlet " + strconv.Itoa(i),
			Disabled: true,
		}
	}
	for i := 1; i <= NumGroups; i++ {
		s.groups[i] = GroupState{
			Index:    i,
			Name:     "Group " + strconv.Itoa(i),
			Disabled: true,
		}
	}

	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Name returns the configured PDU name.
func (s *Session) Name() string {
	return s.cfg.Name
}

// Stats returns a snapshot of the session's performance counters.
func (s *Session) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

func (s *Session) bump(f func(*Stats)) {
	s.statsMu.Lock()
	f(&s.stats)
	s.statsMu.Unlock()
}

// Run drives the session until ctx is cancelled. All session state is
// mutated only from inside this loop; timer callbacks are funneled through
// the scheduler's fired channel to preserve that ordering.
func (s *Session) Run(ctx context.Context) error {
	log.Info().Str("pdu", s.cfg.Name).Msg("session starting")
	s.resetControls()
	s.panel.SetString(controls.StatusIndicator, StatusDisconnected)
	s.meantToStayUp = true
	s.tr.Connect()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case ev := <-s.tr.Events():
			s.handleTransportEvent(ev)
		case fn := <-s.sched.Fired():
			fn()
		case fn := <-s.reqs:
			fn()
		case intent, ok := <-s.intents:
			if !ok {
				s.intents = nil
				continue
			}
			s.handleIntent(intent)
		}
	}
}

func (s *Session) shutdown() {
	log.Info().Str("pdu", s.cfg.Name).Msg("session stopping")
	s.meantToStayUp = false
	s.sched.CancelAll()
	if s.brk != nil {
		s.brk.Unsubscribe(s.subID)
	}
	if err := s.tr.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing transport")
	}
}

// do marshals fn into the Run loop. Drops with a warning if the loop is
// hopelessly backed up.
func (s *Session) do(fn func()) {
	select {
	case s.reqs <- fn:
	default:
		log.Warn().Str("pdu", s.cfg.Name).Msg("request queue full, dropping request")
	}
}

// RequestConnect manually (re)connects, resetting the reconnect budget.
func (s *Session) RequestConnect() {
	s.do(func() {
		s.meantToStayUp = true
		s.recon.Reset()
		s.tr.Connect()
	})
}

// RequestDisconnect manually disconnects; no reconnection is attempted.
func (s *Session) RequestDisconnect() {
	s.do(s.disconnectNow)
}

func (s *Session) disconnectNow() {
	s.meantToStayUp = false
	s.sched.Cancel(s.reconnectTimer)
	if err := s.tr.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing transport")
	}
	s.resetOnDisconnect(StatusDisconnected)
}

func (s *Session) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		s.connected = true
		s.authenticated = false
		s.authFailed = false
		s.usernameSent = false
		s.passwordSent = false
		s.parser.Clear()
		s.flags.reset()
		s.disp.Reset()
		// all outlet and group state is unknown on a fresh connection
		s.resetControls()
		s.panel.SetString(controls.StatusIndicator, StatusConnected)
		log.Info().Str("pdu", s.cfg.Name).Msg("connected")

	case transport.EventData:
		s.bump(func(st *Stats) { st.BytesReceived += uint64(len(ev.Data)) })
		if s.parser.Append(ev.Data) {
			s.consumeBuffer()
		} else {
			s.bump(func(st *Stats) { st.ParseErrors++ })
		}

	case transport.EventClosed:
		log.Warn().Str("pdu", s.cfg.Name).Msg("connection closed by peer")
		s.resetOnDisconnect(StatusSocketClosed)
		s.maybeReconnect()

	case transport.EventError:
		log.Error().Err(ev.Err).Str("pdu", s.cfg.Name).Msg("connection error")
		s.resetOnDisconnect(StatusSocketError(ev.Err.Error()))
		s.maybeReconnect()

	case transport.EventTimeout:
		log.Warn().Str("pdu", s.cfg.Name).Msg("connection timed out")
		s.resetOnDisconnect(StatusSocketTimeout)
		s.maybeReconnect()
	}
}

// resetOnDisconnect tears down all per-connection state. Outlet and group
// values become unknown and their controls stop accepting input.
func (s *Session) resetOnDisconnect(status string) {
	s.connected = false
	s.authenticated = false
	s.parser.Clear()
	s.disp.Reset()
	s.flags.reset()
	s.pending = nil
	s.pendingExecuted = false
	s.op = nil
	s.pendingCycleGroup = 0
	s.settleGroup = ""

	s.sched.Cancel(s.confirmTimer)
	s.confirmTimer = 0
	s.sched.Cancel(s.safetyTimer)
	s.safetyTimer = 0
	s.sched.Cancel(s.serverConfirmTimer)
	s.serverConfirmTimer = 0
	s.sched.Cancel(s.cooldownTimer)
	s.sched.Cancel(s.revertTimer)
	s.sched.Cancel(s.settleTimer)
	s.sched.Cancel(s.credentialTimer)
	s.credentialTimer = 0
	s.stopPolling()

	s.resetControls()
	s.panel.SetString(controls.StatusIndicator, status)
}

// resetControls clears every indicator and disables every input control.
// Outlet and group values become unknown.
func (s *Session) resetControls() {
	s.panel.SetBool(controls.ProcessingIndicator, false)
	s.panel.SetBool(controls.WaitingIndicator, false)
	s.panel.SetString(controls.PendingDescription, "")
	s.panel.SetEnabled(controls.ConfirmButton, false)
	s.panel.SetEnabled(controls.CancelButton, false)

	for i := 1; i <= NumOutlets; i++ {
		s.outlets[i].Disabled = true
		s.panel.SetEnabled(controls.OutletToggle(i), false)
	}
	for i := 1; i <= NumGroups; i++ {
		s.groups[i].Disabled = true
		s.panel.SetEnabled(controls.GroupToggle(i), false)
	}
}

func (s *Session) maybeReconnect() {
	if !s.meantToStayUp {
		return
	}

	delay, ok := s.recon.NextDelay()
	if !ok {
		log.Error().Str("pdu", s.cfg.Name).Msg("reconnect budget exhausted")
		s.panel.SetString(controls.StatusIndicator, StatusMaxReconnects)
		return
	}

	s.bump(func(st *Stats) { st.Reconnects++ })
	log.Info().
		Str("pdu", s.cfg.Name).
		Int("attempt", s.recon.Attempts()).
		Dur("delay", delay).
		Msg("scheduling reconnect")
	s.sched.Cancel(s.reconnectTimer)
	s.reconnectTimer = s.sched.After("reconnect", delay, func() {
		if s.meantToStayUp && !s.connected {
			s.tr.Connect()
		}
	})
}

// consumeBuffer recognizes at most one logical unit in the accumulated
// buffer. Recognition is substring search over the whole buffer; a marker
// split across chunks is not acted on until the rest of it arrives.
func (s *Session) consumeBuffer() {
	if !s.authenticated {
		s.consumeLoginBuffer()
		return
	}

	if s.parser.HasConfirmPrompt() {
		s.parser.Clear()
		s.handleServerConfirm()
		return
	}

	if s.parser.HasCompleteResponse() {
		resp := s.parser.TakeResponse()
		s.handleResponse(resp)
	}
}

func (s *Session) consumeLoginBuffer() {
	switch {
	case s.parser.HasAuthFailure():
		s.parser.Clear()
		s.authFailed = true
		// terminal for this connection attempt; no credential retry
		s.meantToStayUp = false
		s.panel.SetString(controls.StatusIndicator, StatusAuthFailed)
		log.Error().Str("pdu", s.cfg.Name).Msg("authentication failed")
		if err := s.tr.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing transport")
		}
		s.connected = false

	case s.parser.HasWelcome():
		s.parser.Clear()
		s.authenticated = true
		s.recon.Reset()
		s.panel.SetString(controls.StatusIndicator, StatusLoggedIn)
		log.Info().Str("pdu", s.cfg.Name).Msg("logged in")
		s.sched.Cancel(s.pollTimer)
		s.pollTimer = s.sched.After("firstPoll", firstPollGrace, s.pollNow)

	case s.parser.HasPasswordChallenge() && !s.passwordSent:
		// buffer cleared on detection, credential sent after the pacing delay
		s.parser.Clear()
		s.passwordSent = true
		s.credentialTimer = s.sched.After("sendPassword", credentialDelay, func() {
			if err := s.writeLine(s.cfg.Password); err != nil {
				log.Error().Err(err).Msg("failed to send password")
			}
		})

	case s.parser.HasUsernameChallenge() && !s.usernameSent:
		s.parser.Clear()
		s.usernameSent = true
		s.credentialTimer = s.sched.After("sendUsername", credentialDelay, func() {
			if err := s.writeLine(s.cfg.Username); err != nil {
				log.Error().Err(err).Msg("failed to send username")
			}
		})
	}
}

// handleResponse runs structured extraction over a complete, prompt
// terminated response and advances the state machine.
func (s *Session) handleResponse(resp string) {
	s.bump(func(st *Stats) { st.ResponsesParsed++ })

	sensors, skipped := ExtractSensors(resp)
	s.applySensors(sensors)

	if IsGroupListing(resp) {
		// the group response's embedded outlet lines are authoritative
		// while a group operation is in flight
		if s.flags.groupOpInFlight {
			outlets, n := ExtractOutlets(resp)
			skipped += n
			s.applyOutlets(outlets)
		}
		groups, n := ExtractGroups(resp)
		skipped += n
		s.applyGroups(groups)
	} else if !s.flags.reverting {
		outlets, n := ExtractOutlets(resp)
		skipped += n
		s.applyOutlets(outlets)
	}

	if skipped > 0 {
		s.bump(func(st *Stats) { st.ParseErrors += uint64(skipped) })
	}

	wasUserCommand := s.disp.Awaiting() && s.disp.lastUserInitiated
	s.disp.ResponseReceived()
	s.flags.awaitingResponse = false

	if s.flags.groupOpInFlight {
		s.flags.groupOpInFlight = false
		s.flags.postGroupCooldown = true
		s.sched.Cancel(s.cooldownTimer)
		s.cooldownTimer = s.sched.After("postGroupCooldown", postGroupCooldownWindow, func() {
			s.flags.postGroupCooldown = false
		})
	}

	if wasUserCommand && s.pendingExecuted {
		// the executed command's own response has landed
		s.op = nil
		s.clearPendingState()
	}

	if !s.flags.awaitingUserConfirm && !s.flags.awaitingServerConfirm {
		s.flags.processingCommand = false
		s.panel.SetBool(controls.ProcessingIndicator, false)
		s.panel.SetBool(controls.WaitingIndicator, false)
	}

	s.maybeResumePolling()
	s.disp.ProcessNext()
	s.syncAwaiting()
}

func (s *Session) applySensors(readings SensorReadings) {
	if readings.CurrentAmps != nil {
		s.panel.SetString(controls.SensorCurrent,
			fmt.Sprintf("%.2f A", *readings.CurrentAmps))
	}
	if readings.ActivePower != nil {
		s.panel.SetString(controls.SensorActivePower,
			fmt.Sprintf("%.1f W", *readings.ActivePower))
	}
	if readings.Temperature != nil {
		s.panel.SetString(controls.SensorTemperature,
			fmt.Sprintf("%.1f deg C", *readings.Temperature))
	}
	if readings.Humidity != nil {
		s.panel.SetString(controls.SensorHumidity,
			fmt.Sprintf("%.0f %%", *readings.Humidity))
	}
}

func (s *Session) applyOutlets(readings []OutletReading) {
	for _, rd := range readings {
		o := &s.outlets[rd.Index]
		o.On = rd.On
		o.Disabled = false
		if rd.Name != "" {
			o.Name = rd.Name
		}
		s.panel.SetBool(controls.OutletToggle(rd.Index), rd.On)
		s.panel.SetString(controls.OutletLegend(rd.Index), o.Name)
		s.panel.SetEnabled(controls.OutletToggle(rd.Index), true)
	}
}

func (s *Session) applyGroups(readings []GroupReading) {
	seen := make(map[int]bool, len(readings))
	for _, rd := range readings {
		seen[rd.Index] = true
		g := &s.groups[rd.Index]
		g.On = rd.On()
		g.Disabled = false
		if rd.Name != "" {
			g.Name = rd.Name
		}
		s.panel.SetBool(controls.GroupToggle(rd.Index), g.On)
		s.panel.SetString(controls.GroupLegend(rd.Index), g.Name)
		s.panel.SetEnabled(controls.GroupToggle(rd.Index), true)
	}

	// groups absent from the latest listing are unused
	for i := 1; i <= NumGroups; i++ {
		if seen[i] {
			continue
		}
		g := &s.groups[i]
		g.Disabled = true
		g.Name = UnusedGroupName
		g.On = false
		s.panel.SetBool(controls.GroupToggle(i), false)
		s.panel.SetString(controls.GroupLegend(i), UnusedGroupName)
		s.panel.SetEnabled(controls.GroupToggle(i), false)
	}
}

// writeLine sends one CRLF-terminated line to the transport.
func (s *Session) writeLine(text string) error {
	if err := s.tr.Send([]byte(text + "\r\n")); err != nil {
		return err
	}
	s.bump(func(st *Stats) { st.CommandsSent++ })
	return nil
}

// syncAwaiting mirrors the dispatcher's outstanding-command state into the
// inspectable flags struct.
func (s *Session) syncAwaiting() {
	s.flags.awaitingResponse = s.disp.Awaiting()
	if s.flags.awaitingResponse {
		s.panel.SetBool(controls.WaitingIndicator, true)
	}
}

// isBusy reports whether polling and new user commands are suppressed.
func (s *Session) isBusy() bool {
	return s.disp.Awaiting() || s.flags.busy()
}

func (s *Session) handleRetriesExhausted(userInitiated bool) {
	s.bump(func(st *Stats) { st.Timeouts++ })
	s.flags.awaitingResponse = false

	if userInitiated {
		// retries ran first; only now fall back to reverting state
		s.revertToPrevious()
		s.clearPendingState()
	}
	s.flags.groupOpInFlight = false

	s.maybeResumePolling()
	s.disp.ProcessNext()
	s.syncAwaiting()
}

func (s *Session) handleSendFailure(userInitiated bool, err error) {
	log.Error().Err(err).Bool("user", userInitiated).Msg("command send failed")
	s.flags.awaitingResponse = false
	s.bump(func(st *Stats) { st.SendFailures++ })

	if userInitiated {
		// the optimistic toggle stays until an explicit revert runs
		s.clearPendingState()
	}

	// a rejected command text is a local validation failure; the
	// connection itself is fine
	if errors.Is(err, ErrUnsafeCommand) {
		return
	}

	// a failed write means the connection is no longer usable; tear it
	// down first so the reconnect attempt acts on a dead transport. A send
	// failure on an already-dead connection schedules nothing extra: the
	// transport event that killed it owns the reconnect.
	if s.connected {
		if cerr := s.tr.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("error closing transport")
		}
		s.resetOnDisconnect(StatusSocketError(err.Error()))
		s.maybeReconnect()
	}
}
