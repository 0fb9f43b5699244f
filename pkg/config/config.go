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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers/syncutil"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgEnv        = "POWERDECK_CFG"
	CfgFile       = "config.toml"
	AuthFile      = "auth.toml"

	DefaultPort   = 23
	DefaultPrompt = "[My PDU] #"
)

type Values struct {
	Service      Service   `toml:"service,omitempty"`
	Broadcast    Broadcast `toml:"broadcast,omitempty"`
	PDUs         []PDU     `toml:"pdus,omitempty"`
	ConfigSchema int       `toml:"config_schema"`
	DebugLogging bool      `toml:"debug_logging"`
}

// PDU describes one remote endpoint to open a session against.
type PDU struct {
	Name   string `toml:"name"`
	Host   string `toml:"host"`
	Prompt string `toml:"prompt,omitempty"`
	Port   int    `toml:"port,omitempty"`
	// LegacyBroadcastPowerOn makes this session answer cross-device cycle
	// broadcasts with "power on" instead of "cycle".
	LegacyBroadcastPowerOn bool `toml:"legacy_broadcast_power_on,omitempty"`
}

// PortOrDefault returns the configured port, defaulting to the telnet port.
func (p *PDU) PortOrDefault() int {
	if p.Port == 0 {
		return DefaultPort
	}
	return p.Port
}

// PromptOrDefault returns the shell prompt string that terminates responses.
func (p *PDU) PromptOrDefault() string {
	if p.Prompt == "" {
		return DefaultPrompt
	}
	return p.Prompt
}

type Service struct {
	DeviceID            string `toml:"device_id"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds,omitempty"`
}

// Broadcast configures the optional cross-process bridge for synchronized
// group cycles. Empty broker means in-process coordination only.
type Broadcast struct {
	MQTTBroker string `toml:"mqtt_broker,omitempty"`
	MQTTTopic  string `toml:"mqtt_topic,omitempty"`
}

// Auth holds credentials, stored in a separate file from the main config.
type Auth struct {
	Creds map[string]CredentialEntry `toml:"creds,omitempty"`
}

// CredentialEntry is the login for one PDU, keyed by its config name.
type CredentialEntry struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Service: Service{
		PollIntervalSeconds: 10,
	},
	Broadcast: Broadcast{
		MQTTTopic: "powerdeck/broadcast",
	},
}

type Instance struct {
	cfgPath  string
	authPath string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

var authCfg atomic.Value

func GetAuthCfg() Auth {
	val := authCfg.Load()
	if val == nil {
		return Auth{}
	}
	auth, ok := val.(Auth)
	if !ok {
		return Auth{}
	}
	return auth
}

//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		mu:       syncutil.RWMutex{},
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	cfg.authPath = filepath.Join(filepath.Dir(cfgPath), AuthFile)

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	if _, err := os.Stat(c.cfgPath); err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	// This ensures fields not present in the file retain their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	c.vals = newVals

	// load auth file
	if _, err := os.Stat(c.authPath); err == nil {
		log.Info().Msg("loading auth file")
		authData, err := os.ReadFile(c.authPath)
		if err != nil {
			return fmt.Errorf("failed to read auth file: %w", err)
		}

		var authVals Auth
		err = toml.Unmarshal(authData, &authVals)
		if err != nil {
			return fmt.Errorf("failed to unmarshal auth file: %w", err)
		}

		log.Info().Msgf("loaded %d auth entries", len(authVals.Creds))

		authCfg.Store(authVals)
	}

	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	// set current schema version
	c.vals.ConfigSchema = SchemaVersion

	// generate a device id if one doesn't exist
	if c.vals.Service.DeviceID == "" {
		newID := uuid.New().String()
		c.vals.Service.DeviceID = newID
		log.Info().Msgf("generated new device id: %s", newID)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// PDUs returns a copy of the configured endpoints.
func (c *Instance) PDUs() []PDU {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pdus := make([]PDU, len(c.vals.PDUs))
	copy(pdus, c.vals.PDUs)
	return pdus
}

func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.DeviceID
}

func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	secs := c.vals.Service.PollIntervalSeconds
	if secs <= 0 {
		secs = c.defaults.Service.PollIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}

func (c *Instance) Broadcast() Broadcast {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Broadcast
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}

// LookupCredentials returns the login for a PDU by config name.
func LookupCredentials(name string) (CredentialEntry, bool) {
	creds := GetAuthCfg().Creds
	entry, ok := creds[name]
	return entry, ok
}
