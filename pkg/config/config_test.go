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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, CfgFile))
	require.NoError(t, err)

	// a device id was generated on first save
	assert.NotEmpty(t, cfg.DeviceID())
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Empty(t, cfg.PDUs())
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)
	deviceID := cfg.DeviceID()

	configData := `
config_schema = 1
debug_logging = true

[service]
device_id = "` + deviceID + `"
poll_interval_seconds = 30

[broadcast]
mqtt_broker = "localhost:1883"
mqtt_topic = "powerdeck/test"

[[pdus]]
name = "rack-a"
host = "10.0.0.5"

[[pdus]]
name = "rack-b"
host = "10.0.0.6"
port = 2300
prompt = "[Rack B] #"
legacy_broadcast_power_on = true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(configData), 0o600))
	require.NoError(t, cfg.Load())

	assert.True(t, cfg.DebugLogging())
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, "localhost:1883", cfg.Broadcast().MQTTBroker)
	assert.Equal(t, "powerdeck/test", cfg.Broadcast().MQTTTopic)

	pdus := cfg.PDUs()
	require.Len(t, pdus, 2)
	assert.Equal(t, "rack-a", pdus[0].Name)
	assert.Equal(t, DefaultPort, pdus[0].PortOrDefault())
	assert.Equal(t, DefaultPrompt, pdus[0].PromptOrDefault())
	assert.False(t, pdus[0].LegacyBroadcastPowerOn)
	assert.Equal(t, 2300, pdus[1].PortOrDefault())
	assert.Equal(t, "[Rack B] #", pdus[1].PromptOrDefault())
	assert.True(t, pdus[1].LegacyBroadcastPowerOn)
}

func TestConfigSchemaMismatchRejected(t *testing.T) {
	dir := t.TempDir()

	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	bad := "config_schema = 99\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(bad), 0o600))
	require.ErrorContains(t, cfg.Load(), "schema version mismatch")
}

func TestAuthFileLoadsCredentials(t *testing.T) {
	dir := t.TempDir()

	authData := `
[creds.rack-a]
username = "admin"
password = "hunter2"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, AuthFile), []byte(authData), 0o600))

	_, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	entry, ok := LookupCredentials("rack-a")
	require.True(t, ok)
	assert.Equal(t, "admin", entry.Username)
	assert.Equal(t, "hunter2", entry.Password)

	_, ok = LookupCredentials("unknown")
	assert.False(t, ok)
}

func TestSetDebugLoggingPersists(t *testing.T) {
	dir := t.TempDir()

	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	cfg.SetDebugLogging(true)
	require.NoError(t, cfg.Save())

	reloaded, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)
	assert.True(t, reloaded.DebugLogging())
}

func TestPollIntervalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	data := "config_schema = 1\n\n[service]\npoll_interval_seconds = 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte(data), 0o600))
	require.NoError(t, cfg.Load())

	assert.Equal(t, 10*time.Second, cfg.PollInterval())
}
