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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "show sensor externalsensor 1", CmdExternalSensor(1))
	assert.Equal(t, "power outlets 3 on", CmdPowerOutlet(3, ActionOn))
	assert.Equal(t, "power outlets 24 cycle", CmdPowerOutlet(24, ActionCycle))
	assert.Equal(t, "power outletgroup 2 off", CmdPowerGroup(2, ActionOff))
}

func TestValidateCommandText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "plain command", text: "show outlets"},
		{name: "power command", text: "power outlets 12 cycle"},
		{name: "sensor path", text: "show sensor inlet I1 activePower"},
		{name: "empty", text: ""},
		{name: "semicolon injection", text: "show outlets; reboot", wantErr: true},
		{name: "newline injection", text: "show outlets\nreboot", wantErr: true},
		{name: "shell metacharacters", text: "show $(id)", wantErr: true},
		{name: "pipe", text: "show outlets | tee", wantErr: true},
		{name: "non-ascii", text: "show outletsé", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateCommandText(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsafeCommand)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPollBatchCommandsAreSafe(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		CmdShowInlets,
		CmdShowOutlets,
		CmdShowOutletGroups,
		CmdInletActivePower,
		CmdExternalSensor(1),
		CmdExternalSensor(2),
	} {
		assert.NoError(t, ValidateCommandText(text), text)
	}
}
