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

package controls

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBoolsAndStrings(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	assert.False(t, m.Bool(OutletToggle(1)))
	assert.Empty(t, m.String(StatusIndicator))

	m.SetBool(OutletToggle(1), true)
	m.SetString(StatusIndicator, "Connected")

	assert.True(t, m.Bool(OutletToggle(1)))
	assert.Equal(t, "Connected", m.String(StatusIndicator))
}

func TestMemoryEnabledDefaultsTrue(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	assert.True(t, m.Enabled(ConfirmButton))

	m.SetEnabled(ConfirmButton, false)
	assert.False(t, m.Enabled(ConfirmButton))

	m.SetEnabled(ConfirmButton, true)
	assert.True(t, m.Enabled(ConfirmButton))
}

func TestMemoryModeSelection(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	assert.Equal(t, DefaultMode, m.Mode())

	require.NoError(t, m.SelectMode(ModeMonitor))
	assert.Equal(t, ModeMonitor, m.Mode())

	err := m.SelectMode("bogus")
	require.ErrorIs(t, err, ErrUnknownMode)
	assert.Equal(t, ModeMonitor, m.Mode())
}

func TestMemoryConcurrentAccess(t *testing.T) {
	t.Parallel()

	const iterations = 200

	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 1; j <= iterations; j++ {
				m.SetBool(OutletToggle(j%4), j%2 == 0)
				m.Bool(OutletToggle(j % 4))
				m.SetEnabled(GroupToggle(j%4), j%3 == 0)
				m.Enabled(GroupToggle(j % 4))
			}
		}()
	}
	wg.Wait()
}

func TestControlNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "outletToggle7", OutletToggle(7))
	assert.Equal(t, "outletLegend7", OutletLegend(7))
	assert.Equal(t, "outletCycle7", OutletCycleButton(7))
	assert.Equal(t, "groupToggle2", GroupToggle(2))
	assert.Equal(t, "groupLegend2", GroupLegend(2))
	assert.Equal(t, "groupCycle2", GroupCycleButton(2))
}
