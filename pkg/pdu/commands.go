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
	"strconv"

	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers"
)

// Fixed command vocabulary understood by the PDU CLI.
const (
	CmdShowInlets       = "show inlets"
	CmdShowOutlets      = "show outlets"
	CmdShowOutletGroups = "show outletgroups"
	CmdInletActivePower = "show sensor inlet I1 activePower"

	AnswerYes = "y"
	AnswerNo  = "n"
)

// PowerAction is the argument of a power command.
type PowerAction string

const (
	ActionOn    PowerAction = "on"
	ActionOff   PowerAction = "off"
	ActionCycle PowerAction = "cycle"
)

// ErrUnsafeCommand is returned when command text contains characters outside
// the conservative set allowed on the remote shell.
var ErrUnsafeCommand = errors.New("command contains disallowed characters")

// Command is one outbound CLI line. Sanitize is false only for credentials
// and raw confirmation answers, whose content must pass through untouched.
type Command struct {
	Text     string
	Sanitize bool
}

// CmdExternalSensor builds the query for one of the two external sensors.
func CmdExternalSensor(n int) string {
	return "show sensor externalsensor " + strconv.Itoa(n)
}

// CmdPowerOutlet builds the power command for a single outlet.
func CmdPowerOutlet(index int, action PowerAction) string {
	return "power outlets " + strconv.Itoa(index) + " " + string(action)
}

// CmdPowerGroup builds the power command for an outlet group.
func CmdPowerGroup(index int, action PowerAction) string {
	return "power outletgroup " + strconv.Itoa(index) + " " + string(action)
}

// commandCharsetPattern is the conservative character set allowed in
// non-credential command text. Anything else is rejected before send to
// avoid command injection into the remote shell.
const commandCharsetPattern = `^[A-Za-z0-9 \t\-.:]*$`

// ValidateCommandText rejects command text containing characters outside the
// allowed set.
func ValidateCommandText(text string) error {
	re := helpers.GlobalRegexCache.MustCompile(commandCharsetPattern)
	if !re.MatchString(text) {
		return ErrUnsafeCommand
	}
	return nil
}
