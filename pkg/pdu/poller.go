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

import "github.com/rs/zerolog/log"

// maxConsecutivePollSkips halts polling when the session is perpetually
// busy, to avoid a runaway timer chain. A busy-clearing event resumes it.
const maxConsecutivePollSkips = 10

// pollNow issues the read-only status battery if the session is idle, and
// reschedules itself. Each cycle submits a fresh fixed list; it never
// appends to leftovers.
func (s *Session) pollNow() {
	if !s.connected || !s.authenticated {
		return
	}

	if s.isBusy() {
		s.pollSkips++
		if s.pollSkips >= maxConsecutivePollSkips {
			s.pollHalted = true
			log.Warn().
				Str("pdu", s.cfg.Name).
				Int("skips", s.pollSkips).
				Msg("session persistently busy, halting poller")
			return
		}
		s.schedulePoll()
		return
	}

	s.pollSkips = 0
	st := s.Stats()
	log.Debug().
		Str("pdu", s.cfg.Name).
		Uint64("bytes", st.BytesReceived).
		Uint64("sent", st.CommandsSent).
		Uint64("parsed", st.ResponsesParsed).
		Uint64("parseErrors", st.ParseErrors).
		Uint64("sendFailures", st.SendFailures).
		Uint64("retries", st.Retries).
		Uint64("timeouts", st.Timeouts).
		Uint64("reconnects", st.Reconnects).
		Msg("poll cycle")
	s.disp.Enqueue(s.pollBatch())
	s.disp.ProcessNext()
	s.syncAwaiting()
	s.schedulePoll()
}

// pollBatch is the fixed battery of read-only queries. The outlet listing
// is omitted while a group operation is in flight or cooling down, because
// the group response already carries per-outlet truth more reliably.
func (s *Session) pollBatch() []Command {
	cmds := []Command{
		{Text: CmdShowInlets, Sanitize: true},
		{Text: CmdExternalSensor(1), Sanitize: true},
		{Text: CmdExternalSensor(2), Sanitize: true},
		{Text: CmdInletActivePower, Sanitize: true},
	}
	if !s.flags.groupOpInFlight && !s.flags.postGroupCooldown {
		cmds = append(cmds, Command{Text: CmdShowOutlets, Sanitize: true})
	}
	cmds = append(cmds, Command{Text: CmdShowOutletGroups, Sanitize: true})
	return cmds
}

func (s *Session) schedulePoll() {
	s.sched.Cancel(s.pollTimer)
	s.pollTimer = s.sched.After("poll", s.cfg.PollInterval, s.pollNow)
}

func (s *Session) stopPolling() {
	s.sched.Cancel(s.pollTimer)
	s.pollTimer = 0
	s.pollSkips = 0
	s.pollHalted = false
}

// maybeResumePolling restarts a halted poller once the session is idle
// again.
func (s *Session) maybeResumePolling() {
	if s.pollHalted && s.authenticated && !s.isBusy() {
		log.Debug().Str("pdu", s.cfg.Name).Msg("resuming poller")
		s.pollHalted = false
		s.pollSkips = 0
		s.schedulePoll()
	}
}
