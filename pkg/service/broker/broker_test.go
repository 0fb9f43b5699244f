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

package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	defer b.Stop()

	ch1, _ := b.Subscribe(4)
	ch2, _ := b.Subscribe(4)

	intent := Intent{GroupName: "Racks", Origin: "session-a", IssuedAt: time.Now()}
	b.Publish(intent)

	got1 := <-ch1
	got2 := <-ch2
	assert.Equal(t, intent, got1)
	assert.Equal(t, intent, got2)
}

func TestPublisherReceivesOwnIntent(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	defer b.Stop()

	ch, _ := b.Subscribe(1)
	b.Publish(Intent{GroupName: "Racks", Origin: "me"})

	got := <-ch
	assert.Equal(t, "me", got.Origin)
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	defer b.Stop()

	slow, _ := b.Subscribe(1)
	fast, _ := b.Subscribe(4)

	b.Publish(Intent{GroupName: "one"})
	b.Publish(Intent{GroupName: "two"}) // dropped for slow
	b.Publish(Intent{GroupName: "three"})

	// the slow subscriber kept only the first intent
	got := <-slow
	assert.Equal(t, "one", got.GroupName)
	select {
	case extra := <-slow:
		t.Fatalf("unexpected intent %q for full subscriber", extra.GroupName)
	default:
	}

	// the fast subscriber saw everything
	assert.Equal(t, "one", (<-fast).GroupName)
	assert.Equal(t, "two", (<-fast).GroupName)
	assert.Equal(t, "three", (<-fast).GroupName)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	defer b.Stop()

	ch, id := b.Subscribe(1)
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// repeated unsubscribes are harmless
	b.Unsubscribe(id)

	// publishing after unsubscribe does not panic
	b.Publish(Intent{GroupName: "Racks"})
}

func TestStopClosesAllSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	ch1, _ := b.Subscribe(1)
	ch2, _ := b.Subscribe(1)

	b.Stop()

	_, open1 := <-ch1
	_, open2 := <-ch2
	require.False(t, open1)
	require.False(t, open2)
}
