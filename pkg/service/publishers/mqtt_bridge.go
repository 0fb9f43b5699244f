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

// Package publishers bridges the in-process intent broker to external
// messaging systems so group cycle coordination can span hosts.
package publishers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers/syncutil"
	"github.com/PowerdeckProject/powerdeck-core/pkg/service/broker"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const bridgeBufferSize = 16

// wireIntent is the JSON shape of an intent on the MQTT topic. DeviceID
// scopes origins so two processes never mistake a remote intent for their
// own.
type wireIntent struct {
	IssuedAt  time.Time `json:"issuedAt"`
	DeviceID  string    `json:"deviceId"`
	GroupName string    `json:"groupName"`
	Origin    string    `json:"origin"`
	Cancel    bool      `json:"cancel,omitempty"`
}

// MQTTBridge mirrors broker intents to an MQTT topic and republishes
// intents received from the topic into the local broker.
type MQTTBridge struct {
	client mqtt.Client
	brk    *broker.Broker
	stopCh chan struct{}
	// remoteOrigins records session origins first seen over MQTT. Intents
	// from these origins must not be forwarded back out or they would
	// bounce between processes forever.
	remoteOrigins map[string]time.Time
	intents       <-chan broker.Intent
	address       string
	topic         string
	deviceID      string
	subID         int
	mu            syncutil.Mutex
}

// NewMQTTBridge creates a bridge for the given broker address and topic.
// The deviceID must be unique per running service.
func NewMQTTBridge(address, topic, deviceID string, brk *broker.Broker) *MQTTBridge {
	return &MQTTBridge{
		address:       address,
		topic:         topic,
		deviceID:      deviceID,
		brk:           brk,
		remoteOrigins: make(map[string]time.Time),
		stopCh:        make(chan struct{}),
	}
}

// Start connects to the MQTT broker, subscribes to the bridge topic, and
// begins forwarding intents in both directions.
func (b *MQTTBridge) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", b.address))
	opts.SetClientID("powerdeck-bridge-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	opts.OnConnect = func(client mqtt.Client) {
		log.Info().Msgf("mqtt bridge: connected to %s", b.address)
		// resubscribe on every (re)connect
		token := client.Subscribe(b.topic, 0, b.onMessage)
		if token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Msgf("mqtt bridge: failed to subscribe to %s", b.topic)
		}
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt bridge: connection lost")
	}

	b.client = mqtt.NewClient(opts)

	token := b.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	b.intents, b.subID = b.brk.Subscribe(bridgeBufferSize)
	go b.forwardIntents()

	log.Info().Msgf("mqtt bridge: forwarding intents on %s (topic: %s)", b.address, b.topic)
	return nil
}

// Stop disconnects from the MQTT broker and stops forwarding.
func (b *MQTTBridge) Stop() {
	close(b.stopCh)
	b.brk.Unsubscribe(b.subID)

	if b.client != nil && b.client.IsConnected() {
		log.Debug().Msg("mqtt bridge: disconnecting")
		b.client.Disconnect(250)
	}
}

// forwardIntents publishes locally originated intents to the MQTT topic.
func (b *MQTTBridge) forwardIntents() {
	for {
		select {
		case <-b.stopCh:
			return
		case intent, ok := <-b.intents:
			if !ok {
				return
			}

			if b.isRemoteOrigin(intent.Origin) {
				continue
			}

			payload, err := json.Marshal(wireIntent{
				IssuedAt:  intent.IssuedAt,
				DeviceID:  b.deviceID,
				GroupName: intent.GroupName,
				Origin:    intent.Origin,
				Cancel:    intent.Cancel,
			})
			if err != nil {
				log.Error().Err(err).Msg("mqtt bridge: failed to marshal intent")
				continue
			}

			token := b.client.Publish(b.topic, 0, false, payload)
			if token.Wait() && token.Error() != nil {
				log.Error().Err(token.Error()).Msg("mqtt bridge: failed to publish intent")
				continue
			}

			log.Debug().Str("group", intent.GroupName).Msg("mqtt bridge: published intent")
		}
	}
}

// onMessage republishes a remote intent into the local broker. Messages from
// this device are discarded to avoid echo loops.
func (b *MQTTBridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var wi wireIntent
	if err := json.Unmarshal(msg.Payload(), &wi); err != nil {
		log.Warn().Err(err).Msg("mqtt bridge: dropping malformed intent")
		return
	}

	if wi.DeviceID == b.deviceID {
		return
	}
	if wi.GroupName == "" {
		return
	}

	b.markRemoteOrigin(wi.Origin)

	log.Debug().
		Str("group", wi.GroupName).
		Str("device", wi.DeviceID).
		Msg("mqtt bridge: received remote intent")
	b.brk.Publish(broker.Intent{
		IssuedAt:  wi.IssuedAt,
		GroupName: wi.GroupName,
		Origin:    wi.Origin,
		Cancel:    wi.Cancel,
	})
}

func (b *MQTTBridge) markRemoteOrigin(origin string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for o, seen := range b.remoteOrigins {
		if now.Sub(seen) > time.Hour {
			delete(b.remoteOrigins, o)
		}
	}
	b.remoteOrigins[origin] = now
}

func (b *MQTTBridge) isRemoteOrigin(origin string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.remoteOrigins[origin]
	return ok
}
