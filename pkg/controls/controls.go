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

// Package controls models the external control surface the session core talks
// to. The core only reads and writes named values; rendering, layout and
// persistence belong to whatever UI implements the Panel interface.
package controls

import "strconv"

// Well-known indicator and button names.
const (
	StatusIndicator     = "connectionStatus"
	ProcessingIndicator = "processing"
	WaitingIndicator    = "waitingForResponse"
	PendingDescription  = "pendingDescription"
	ConfirmButton       = "confirm"
	CancelButton        = "cancel"

	SensorCurrent     = "inletCurrent"
	SensorActivePower = "inletActivePower"
	SensorTemperature = "externalTemperature"
	SensorHumidity    = "externalHumidity"
)

// Selectable panel modes. Exactly one is active at a time.
const (
	ModeControl = "control"
	ModeMonitor = "monitor"
	ModeSetup   = "setup"
)

// DefaultMode is selected when no mode has been chosen yet.
const DefaultMode = ModeControl

// Modes lists every selectable mode.
var Modes = []string{ModeControl, ModeMonitor, ModeSetup}

// OutletToggle returns the name of the power toggle for an outlet.
func OutletToggle(index int) string {
	return "outletToggle" + strconv.Itoa(index)
}

// OutletLegend returns the name of the label control for an outlet.
func OutletLegend(index int) string {
	return "outletLegend" + strconv.Itoa(index)
}

// OutletCycleButton returns the name of the momentary cycle button for an outlet.
func OutletCycleButton(index int) string {
	return "outletCycle" + strconv.Itoa(index)
}

// GroupToggle returns the name of the power toggle for an outlet group.
func GroupToggle(index int) string {
	return "groupToggle" + strconv.Itoa(index)
}

// GroupLegend returns the name of the label control for an outlet group.
func GroupLegend(index int) string {
	return "groupLegend" + strconv.Itoa(index)
}

// GroupCycleButton returns the name of the momentary cycle button for a group.
func GroupCycleButton(index int) string {
	return "groupCycle" + strconv.Itoa(index)
}

// Panel is the consumed control surface. Implementations must be safe for
// concurrent use: the session may read or write values at any time, and the
// UI may flip toggles underneath it.
type Panel interface {
	// Bool returns the current value of a named toggle or indicator.
	Bool(name string) bool
	// SetBool sets a named toggle or indicator.
	SetBool(name string, v bool)
	// String returns the current value of a named text indicator.
	String(name string) string
	// SetString sets a named text indicator.
	SetString(name, v string)
	// Enabled reports whether a named control accepts user input.
	Enabled(name string) bool
	// SetEnabled changes whether a named control accepts user input.
	SetEnabled(name string, enabled bool)
	// Mode returns the currently selected mode, defaulting to DefaultMode.
	Mode() string
	// SelectMode selects a mode, deselecting any other.
	SelectMode(name string) error
}
