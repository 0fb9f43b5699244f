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

import "time"

const (
	// NumOutlets is the number of addressable outlets on a PDU.
	NumOutlets = 24
	// NumGroups is the number of addressable outlet groups.
	NumGroups = 10
)

// Connection status strings surfaced to the panel's status indicator.
const (
	StatusConnected     = "Connected"
	StatusLoggedIn      = "Logged In"
	StatusAuthFailed    = "Authentication Failed"
	StatusSocketClosed  = "Socket Closed"
	StatusSocketTimeout = "Socket Timeout"
	StatusDisconnected  = "Disconnected"
	StatusMaxReconnects = "Max Reconnect Attempts Reached"
)

// StatusSocketError formats a socket error status with detail.
func StatusSocketError(detail string) string {
	return "Socket Error: " + detail
}

// UnusedGroupName labels groups absent from the latest group listing.
const UnusedGroupName = "Unused"

// OutletState is the last known state of one outlet. Disabled means the
// value is unknown (not yet learned, or lost on disconnect) and the outlet's
// controls should not accept input.
type OutletState struct {
	Name     string
	Index    int
	On       bool
	Disabled bool
}

// GroupState is the last known state of one outlet group. On is derived from
// the member summary: a group is on iff no member is off and at least one
// member is on.
type GroupState struct {
	Name     string
	Index    int
	On       bool
	Disabled bool
}

// CommandKind classifies a user-armed action.
type CommandKind int

const (
	KindOutletToggle CommandKind = iota
	KindGroupToggle
	KindOutletCycle
	KindGroupCycle
)

func (k CommandKind) String() string {
	switch k {
	case KindOutletToggle:
		return "outlet-toggle"
	case KindGroupToggle:
		return "group-toggle"
	case KindOutletCycle:
		return "outlet-cycle"
	case KindGroupCycle:
		return "group-cycle"
	default:
		return "unknown"
	}
}

// IsCycle reports whether the action is a fire-and-forget pulse. Cycles have
// no steady state to restore and are never reverted.
func (k CommandKind) IsCycle() bool {
	return k == KindOutletCycle || k == KindGroupCycle
}

// IsGroup reports whether the action targets a group rather than an outlet.
func (k CommandKind) IsGroup() bool {
	return k == KindGroupToggle || k == KindGroupCycle
}

// PendingCommand is the single armed-but-unexecuted user action. At most one
// exists per session; arming a new one supersedes the old.
type PendingCommand struct {
	ArmedAt     time.Time
	Text        string
	Description string
	Kind        CommandKind
	Index       int
	IntendedOn  bool
}

// operationRecord snapshots the state an operation may need to revert to.
// Taken immediately before sending, overwritten by each new operation.
type operationRecord struct {
	Kind    CommandKind
	Index   int
	PriorOn bool
}

// sessionFlags are the overlapping busy substates layered on top of a ready
// session. They are plain fields so invariants can be checked by direct
// inspection in tests.
type sessionFlags struct {
	// awaitingResponse is true between sending a command and recognizing
	// its prompt-terminated response.
	awaitingResponse bool
	// processingCommand is true while a user-initiated command is in flight.
	processingCommand bool
	// awaitingUserConfirm is true from arming until the response to the
	// executed command arrives, or until cancel/timeout.
	awaitingUserConfirm bool
	// awaitingServerConfirm is true while a server-side y/n prompt is
	// surfaced to the user. Never true together with awaitingUserConfirm.
	awaitingServerConfirm bool
	// groupOpInFlight is true while a group power command is outstanding.
	groupOpInFlight bool
	// postGroupCooldown is true for a window after a group response, during
	// which individual outlet queries are skipped.
	postGroupCooldown bool
	// reverting suppresses parser outlet updates while a revert settles.
	reverting bool
}

// busy reports whether polling and new user commands must be suppressed.
func (f *sessionFlags) busy() bool {
	return f.awaitingResponse ||
		f.processingCommand ||
		f.awaitingUserConfirm ||
		f.awaitingServerConfirm ||
		f.groupOpInFlight ||
		f.reverting
}

// reset clears every substate flag.
func (f *sessionFlags) reset() {
	*f = sessionFlags{}
}

// Stats is a snapshot of per-session performance counters.
type Stats struct {
	BytesReceived   uint64
	CommandsSent    uint64
	ResponsesParsed uint64
	ParseErrors     uint64
	SendFailures    uint64
	Retries         uint64
	Timeouts        uint64
	Reconnects      uint64
}
