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
	"fmt"

	"github.com/PowerdeckProject/powerdeck-core/pkg/controls"
	"github.com/rs/zerolog/log"
)

// This file is the confirmation / pending-command manager: a two-layer
// confirmation scheme. Layer 1 arms a user action and waits for the user's
// confirm; layer 2 executes it and waits for the server's response. A
// server-side "Do you wish to continue?" interjection is auto-acknowledged
// when layer 1 already confirmed, so the user is never asked twice.

// RequestOutletToggle arms an outlet on/off command for confirmation.
func (s *Session) RequestOutletToggle(index int, intendedOn bool) {
	s.do(func() { s.armOutletToggle(index, intendedOn) })
}

// RequestGroupToggle arms a group on/off command for confirmation.
func (s *Session) RequestGroupToggle(index int, intendedOn bool) {
	s.do(func() { s.armGroupToggle(index, intendedOn) })
}

// RequestOutletCycle arms an outlet power-cycle for confirmation.
func (s *Session) RequestOutletCycle(index int) {
	s.do(func() { s.armOutletCycle(index) })
}

// RequestGroupCycle arms a group power-cycle for confirmation.
func (s *Session) RequestGroupCycle(index int) {
	s.do(func() { s.armGroupCycle(index) })
}

// RequestConfirm executes the armed command, or answers an outstanding
// server-side confirmation prompt affirmatively.
func (s *Session) RequestConfirm() {
	s.do(s.confirmPending)
}

// RequestCancel cancels the armed command, or answers an outstanding
// server-side confirmation prompt negatively.
func (s *Session) RequestCancel() {
	s.do(func() { s.cancelPending("user cancel") })
}

func (s *Session) armOutletToggle(index int, intendedOn bool) {
	if index < 1 || index > NumOutlets {
		return
	}
	if s.outlets[index].Disabled {
		// never-listed outlet: there is no known prior state to revert to
		return
	}
	action := ActionOff
	if intendedOn {
		action = ActionOn
	}
	desc := fmt.Sprintf("Turn outlet %d (%s) %s", index, s.outlets[index].Name, action)
	s.prepareCommand(KindOutletToggle, index, CmdPowerOutlet(index, action), intendedOn, desc)
}

func (s *Session) armGroupToggle(index int, intendedOn bool) {
	if index < 1 || index > NumGroups {
		return
	}
	if s.groups[index].Disabled {
		return
	}
	action := ActionOff
	if intendedOn {
		action = ActionOn
	}
	desc := fmt.Sprintf("Turn group %d (%s) %s", index, s.groups[index].Name, action)
	s.prepareCommand(KindGroupToggle, index, CmdPowerGroup(index, action), intendedOn, desc)
}

func (s *Session) armOutletCycle(index int) {
	if index < 1 || index > NumOutlets {
		return
	}
	if s.outlets[index].Disabled {
		return
	}
	desc := fmt.Sprintf("Cycle outlet %d (%s)", index, s.outlets[index].Name)
	s.prepareCommand(KindOutletCycle, index, CmdPowerOutlet(index, ActionCycle), false, desc)
}

func (s *Session) armGroupCycle(index int) {
	if index < 1 || index > NumGroups {
		return
	}
	if s.groups[index].Disabled {
		return
	}
	desc := fmt.Sprintf("Cycle group %d (%s)", index, s.groups[index].Name)
	s.prepareCommand(KindGroupCycle, index, CmdPowerGroup(index, ActionCycle), false, desc)
}

// prepareCommand is confirmation layer 1: capture the action, surface the
// confirm/cancel pair, and start the timeouts. Arming while another command
// is armed silently supersedes it, reverting its toggle first.
func (s *Session) prepareCommand(
	kind CommandKind,
	index int,
	text string,
	intendedOn bool,
	description string,
) {
	if !s.connected || !s.authenticated {
		log.Warn().Str("description", description).Msg("cannot arm command while disconnected")
		s.revertToggleVisual(kind, index)
		return
	}
	if s.flags.awaitingServerConfirm {
		// a legacy server prompt owns the confirm/cancel pair right now
		s.revertToggleVisual(kind, index)
		return
	}

	if s.pending != nil {
		log.Debug().
			Str("old", s.pending.Description).
			Str("new", description).
			Msg("superseding armed command")
		s.revertToggleVisual(s.pending.Kind, s.pending.Index)
	}

	s.pending = &PendingCommand{
		Kind:        kind,
		Index:       index,
		Text:        text,
		IntendedOn:  intendedOn,
		Description: description,
		ArmedAt:     s.clock.Now(),
	}
	s.pendingExecuted = false
	s.flags.awaitingUserConfirm = true

	s.panel.SetBool(controls.WaitingIndicator, true)
	s.panel.SetString(controls.PendingDescription, description)
	s.panel.SetEnabled(controls.ConfirmButton, true)
	s.panel.SetEnabled(controls.CancelButton, true)

	// the short timeout restarts on every re-arm; the safety timeout does
	// not, so rapid re-toggling cannot hold a confirmation open forever
	s.sched.Cancel(s.confirmTimer)
	s.confirmTimer = s.sched.After("confirmTimeout", confirmTimeout, func() {
		s.confirmTimer = 0
		s.cancelPending("confirmation timeout")
	})
	if s.safetyTimer == 0 {
		s.safetyTimer = s.sched.After("safetyTimeout", safetyTimeout, func() {
			s.safetyTimer = 0
			s.cancelPending("safety timeout")
		})
	}
}

// confirmPending is confirmation layer 2: snapshot state for revert, send
// the command, and keep the user-confirmation flag up until the server's
// response to it actually arrives.
func (s *Session) confirmPending() {
	if s.flags.awaitingServerConfirm {
		if err := s.writeLine(AnswerYes); err != nil {
			log.Error().Err(err).Msg("failed to answer server confirmation")
		}
		s.clearServerConfirm()
		return
	}

	p := s.pending
	if p == nil || s.pendingExecuted {
		return
	}
	if !s.connected || !s.authenticated {
		s.cancelPending("disconnected before confirm")
		return
	}

	prior := false
	if p.Kind.IsGroup() {
		prior = s.groups[p.Index].On
	} else {
		prior = s.outlets[p.Index].On
	}
	s.op = &operationRecord{Kind: p.Kind, Index: p.Index, PriorOn: prior}

	// optimistic update; cycles have no steady state to show
	if !p.Kind.IsCycle() {
		if p.Kind.IsGroup() {
			s.groups[p.Index].On = p.IntendedOn
			s.panel.SetBool(controls.GroupToggle(p.Index), p.IntendedOn)
		} else {
			s.outlets[p.Index].On = p.IntendedOn
			s.panel.SetBool(controls.OutletToggle(p.Index), p.IntendedOn)
		}
	}

	s.pendingExecuted = true
	s.flags.processingCommand = true
	s.panel.SetBool(controls.ProcessingIndicator, true)
	s.panel.SetBool(controls.WaitingIndicator, true)

	s.sched.Cancel(s.confirmTimer)
	s.confirmTimer = 0
	s.sched.Cancel(s.safetyTimer)
	s.safetyTimer = 0

	if p.Kind.IsGroup() {
		s.flags.groupOpInFlight = true
	}
	if p.Kind == KindGroupCycle {
		s.initiateBroadcast(p.Index)
	}

	log.Info().Str("description", p.Description).Msg("executing confirmed command")
	s.disp.Dispatch(Command{Text: p.Text, Sanitize: true}, true)
	s.syncAwaiting()
}

// cancelPending handles user cancel and every timeout-driven auto-cancel.
func (s *Session) cancelPending(reason string) {
	if s.flags.awaitingServerConfirm {
		if err := s.writeLine(AnswerNo); err != nil {
			log.Error().Err(err).Msg("failed to answer server confirmation")
		}
		s.clearServerConfirm()
		return
	}

	p := s.pending
	if p == nil {
		return
	}
	log.Info().Str("description", p.Description).Str("reason", reason).Msg("cancelling pending command")

	if s.pendingExecuted {
		s.revertToPrevious()
	} else {
		s.revertToggleVisual(p.Kind, p.Index)
	}
	s.clearPendingState()
	s.maybeResumePolling()
}

// clearPendingState drops the pending command and every confirmation
// indicator and timer. It does not touch toggles; reverts are separate.
func (s *Session) clearPendingState() {
	s.pending = nil
	s.pendingExecuted = false
	s.flags.awaitingUserConfirm = false
	s.flags.processingCommand = false

	s.panel.SetBool(controls.WaitingIndicator, false)
	s.panel.SetBool(controls.ProcessingIndicator, false)
	s.panel.SetString(controls.PendingDescription, "")
	s.panel.SetEnabled(controls.ConfirmButton, false)
	s.panel.SetEnabled(controls.CancelButton, false)

	s.sched.Cancel(s.confirmTimer)
	s.confirmTimer = 0
	s.sched.Cancel(s.safetyTimer)
	s.safetyTimer = 0
}

// revertToggleVisual restores a toggle's displayed value to the session's
// last known state. Cycle buttons are momentary and have nothing to revert.
func (s *Session) revertToggleVisual(kind CommandKind, index int) {
	if kind.IsCycle() {
		return
	}
	if kind.IsGroup() {
		s.panel.SetBool(controls.GroupToggle(index), s.groups[index].On)
	} else {
		s.panel.SetBool(controls.OutletToggle(index), s.outlets[index].On)
	}
}

// revertToPrevious restores the one outlet or group named in the operation
// record to its pre-operation state. Cycles are never reverted. A short
// grace window suppresses parser outlet updates so an in-flight status
// response cannot race the revert and immediately undo it.
func (s *Session) revertToPrevious() {
	op := s.op
	if op == nil {
		return
	}
	s.op = nil
	if op.Kind.IsCycle() {
		return
	}

	log.Info().
		Str("kind", op.Kind.String()).
		Int("index", op.Index).
		Bool("prior", op.PriorOn).
		Msg("reverting to previous state")

	s.flags.reverting = true
	if op.Kind.IsGroup() {
		s.groups[op.Index].On = op.PriorOn
		s.panel.SetBool(controls.GroupToggle(op.Index), op.PriorOn)
	} else {
		s.outlets[op.Index].On = op.PriorOn
		s.panel.SetBool(controls.OutletToggle(op.Index), op.PriorOn)
	}

	s.sched.Cancel(s.revertTimer)
	s.revertTimer = s.sched.After("revertGrace", revertGraceWindow, func() {
		s.flags.reverting = false
		s.maybeResumePolling()
	})
}

// handleServerConfirm reacts to a server-side y/n prompt. With a layer-1
// confirmation already active it is auto-acknowledged; otherwise it is
// surfaced to the user with its own timeout, defaulting to no.
func (s *Session) handleServerConfirm() {
	if s.flags.awaitingUserConfirm {
		log.Debug().Msg("auto-acknowledging server confirmation")
		if err := s.writeLine(AnswerYes); err != nil {
			log.Error().Err(err).Msg("failed to auto-acknowledge server confirmation")
		}
		return
	}

	s.flags.awaitingServerConfirm = true
	s.panel.SetBool(controls.WaitingIndicator, true)
	s.panel.SetString(controls.PendingDescription, "Do you wish to continue?")
	s.panel.SetEnabled(controls.ConfirmButton, true)
	s.panel.SetEnabled(controls.CancelButton, true)

	s.sched.Cancel(s.serverConfirmTimer)
	s.serverConfirmTimer = s.sched.After("serverConfirmTimeout", serverConfirmTimeout, func() {
		if !s.flags.awaitingServerConfirm {
			return
		}
		log.Info().Msg("server confirmation timed out, answering no")
		if err := s.writeLine(AnswerNo); err != nil {
			log.Error().Err(err).Msg("failed to answer server confirmation")
		}
		s.clearServerConfirm()
	})
}

func (s *Session) clearServerConfirm() {
	s.flags.awaitingServerConfirm = false
	s.sched.Cancel(s.serverConfirmTimer)
	s.serverConfirmTimer = 0

	s.panel.SetString(controls.PendingDescription, "")
	s.panel.SetEnabled(controls.ConfirmButton, false)
	s.panel.SetEnabled(controls.CancelButton, false)
	if !s.isBusy() {
		s.panel.SetBool(controls.WaitingIndicator, false)
	}
}
