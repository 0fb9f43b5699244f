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

// Package broker provides the in-process channel that synchronizes group
// cycle operations across PDU sessions. An initiator publishes an intent
// naming the group; every session sharing a group of that name reacts.
// Non-blocking sends ensure a slow subscriber cannot stall the rest.
package broker

import (
	"time"

	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Intent is one cross-session cycle coordination message. Cancel revokes a
// previously published intent for the same group during its settle window.
type Intent struct {
	IssuedAt  time.Time
	GroupName string
	// Origin identifies the publishing session. A subscriber that sees its
	// own origin is the initiator and must not act again.
	Origin string
	Cancel bool
}

// Broker fans intents out to all subscribed sessions.
type Broker struct {
	subscribers map[int]chan Intent
	mu          syncutil.RWMutex
	nextID      int
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int]chan Intent),
	}
}

// Publish sends an intent to every subscriber, including the publisher's
// own subscription, using non-blocking sends. If a subscriber's channel is
// full the intent is dropped for that subscriber and a warning is logged.
func (b *Broker) Publish(intent Intent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- intent:
			// Successfully sent to this subscriber
		default:
			log.Warn().
				Int("subscriber_id", id).
				Str("group", intent.GroupName).
				Msg("subscriber channel full, dropping intent")
		}
	}
}

// Subscribe creates a new subscription and returns a channel that will
// receive intents. The bufferSize determines how many intents can be queued
// before drops begin.
//
// Returns the intent channel and a subscription ID for unsubscribing.
func (b *Broker) Subscribe(bufferSize int) (intents <-chan Intent, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++

	ch := make(chan Intent, bufferSize)
	b.subscribers[id] = ch

	log.Debug().
		Int("subscriber_id", id).
		Int("buffer_size", bufferSize).
		Msg("new subscriber registered")

	intents = ch
	return
}

// Unsubscribe removes a subscription and closes its channel.
// It's safe to call this multiple times with the same ID.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
		log.Debug().Int("subscriber_id", id).Msg("subscriber unsubscribed")
	}
}

// Stop closes all subscriber channels. Called during service shutdown.
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		log.Debug().Int("subscriber_id", id).Msg("closed subscriber channel on shutdown")
	}
	b.subscribers = make(map[int]chan Intent)
}
