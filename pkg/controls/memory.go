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
	"errors"

	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers/syncutil"
)

// ErrUnknownMode is returned by SelectMode for a mode not in Modes.
var ErrUnknownMode = errors.New("unknown panel mode")

// Memory is an in-memory Panel. It backs headless deployments and tests;
// real UIs can embed it and mirror writes out to their own widgets.
type Memory struct {
	bools    map[string]bool
	strings  map[string]string
	disabled map[string]bool
	mode     string
	mu       syncutil.RWMutex
}

// NewMemory creates an empty in-memory panel with all controls enabled.
func NewMemory() *Memory {
	return &Memory{
		bools:    make(map[string]bool),
		strings:  make(map[string]string),
		disabled: make(map[string]bool),
	}
}

func (m *Memory) Bool(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bools[name]
}

func (m *Memory) SetBool(name string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bools[name] = v
}

func (m *Memory) String(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strings[name]
}

func (m *Memory) SetString(name, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[name] = v
}

// Enabled reports whether a control accepts input. Controls are enabled
// until explicitly disabled.
func (m *Memory) Enabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.disabled[name]
}

func (m *Memory) SetEnabled(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled {
		delete(m.disabled, name)
	} else {
		m.disabled[name] = true
	}
}

func (m *Memory) Mode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.mode == "" {
		return DefaultMode
	}
	return m.mode
}

// SelectMode selects one mode and deselects all others.
func (m *Memory) SelectMode(name string) error {
	valid := false
	for _, mode := range Modes {
		if mode == name {
			valid = true
			break
		}
	}
	if !valid {
		return ErrUnknownMode
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = name
	return nil
}
