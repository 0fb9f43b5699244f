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

	"github.com/PowerdeckProject/powerdeck-core/pkg/service/broker"
	"github.com/rs/zerolog/log"
)

// Cross-device cycle coordination. A group cycle on one PDU publishes an
// intent naming the group; any peer session that has a local group of the
// same name waits out a settle window and then issues its own command as
// the receiver. The initiator sends its cycle directly and must not act on
// its own intent.

const (
	// broadcastSettleWindow is how long a receiver waits before issuing its
	// command, leaving room for a cancellation to arrive.
	broadcastSettleWindow = 2 * time.Second
	// broadcastCooldown suppresses duplicate processing of the same group
	// name.
	broadcastCooldown = 5 * time.Second
)

// initiateBroadcast publishes the cycle intent for a local group. Called on
// the initiator side only, just before its own cycle command is sent.
func (s *Session) initiateBroadcast(groupIndex int) {
	name := s.groups[groupIndex].Name
	if name == "" || name == UnusedGroupName {
		return
	}

	// only the initiator records the pending cycle group index; it is what
	// distinguishes initiator from receiver when the intent comes back
	s.pendingCycleGroup = groupIndex
	s.lastBroadcast[name] = s.clock.Now()

	if s.brk == nil {
		return
	}
	log.Info().Str("group", name).Msg("broadcasting group cycle")
	s.brk.Publish(broker.Intent{
		GroupName: name,
		Origin:    s.id,
		IssuedAt:  s.clock.Now(),
	})
}

// CancelBroadcast revokes a just-published cycle intent for peers still in
// their settle window.
func (s *Session) CancelBroadcast(groupName string) {
	s.do(func() {
		if s.brk == nil {
			return
		}
		s.brk.Publish(broker.Intent{
			GroupName: groupName,
			Origin:    s.id,
			IssuedAt:  s.clock.Now(),
			Cancel:    true,
		})
	})
}

func (s *Session) handleIntent(intent broker.Intent) {
	if intent.Cancel {
		if s.settleGroup != "" && s.settleGroup == intent.GroupName {
			log.Info().Str("group", intent.GroupName).Msg("broadcast cancelled during settle window")
			s.sched.Cancel(s.settleTimer)
			s.settleTimer = 0
			s.settleGroup = ""
		}
		if s.pendingCycleGroup != 0 && s.groups[s.pendingCycleGroup].Name == intent.GroupName {
			s.pendingCycleGroup = 0
		}
		return
	}

	if intent.Origin == s.id {
		// our own publication coming back; the initiator's command is
		// already on the wire
		s.pendingCycleGroup = 0
		return
	}

	idx := s.findGroupByName(intent.GroupName)
	if idx == 0 {
		return
	}
	if s.pendingCycleGroup == idx {
		// we initiated a cycle for this group ourselves
		s.pendingCycleGroup = 0
		return
	}

	if last, ok := s.lastBroadcast[intent.GroupName]; ok {
		if s.clock.Now().Sub(last) < broadcastCooldown {
			log.Debug().Str("group", intent.GroupName).Msg("ignoring duplicate broadcast within cooldown")
			return
		}
	}
	s.lastBroadcast[intent.GroupName] = s.clock.Now()

	if !s.connected || !s.authenticated {
		return
	}

	log.Info().
		Str("group", intent.GroupName).
		Str("origin", intent.Origin).
		Msg("received group cycle broadcast, settling")
	s.settleGroup = intent.GroupName
	s.sched.Cancel(s.settleTimer)
	s.settleTimer = s.sched.After("broadcastSettle", broadcastSettleWindow, func() {
		if s.settleGroup != intent.GroupName {
			return
		}
		s.settleTimer = 0
		s.settleGroup = ""
		s.receiveBroadcastCycle(idx)
	})
}

// receiveBroadcastCycle issues this session's own command as the broadcast
// receiver. Legacy deployments answer with power-on; later ones cycle.
func (s *Session) receiveBroadcastCycle(groupIndex int) {
	action := ActionCycle
	if s.cfg.LegacyBroadcastPowerOn {
		action = ActionOn
	}

	log.Info().
		Int("group", groupIndex).
		Str("action", string(action)).
		Msg("executing group cycle as broadcast receiver")
	s.flags.groupOpInFlight = true
	s.disp.Dispatch(Command{Text: CmdPowerGroup(groupIndex, action), Sanitize: true}, false)
	s.syncAwaiting()
}

// findGroupByName returns the index of an active local group with the given
// name, or zero.
func (s *Session) findGroupByName(name string) int {
	if name == "" {
		return 0
	}
	for i := 1; i <= NumGroups; i++ {
		if !s.groups[i].Disabled && s.groups[i].Name == name {
			return i
		}
	}
	return 0
}
