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
	"time"

	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// maxScheduledTimers bounds timer growth under pathological rapid
	// toggling. The oldest timer is evicted to make room.
	maxScheduledTimers = 32
	firedBufferSize    = 64
)

// timerID identifies one scheduled callback.
type timerID uint64

// scheduler owns every delayed action of a session. Callbacks never run on
// the timer goroutine: they are delivered on the Fired channel and executed
// inside the session's event loop, preserving the single-threaded model.
type scheduler struct {
	clock  clockwork.Clock
	timers map[timerID]*scheduledTimer
	fired  chan func()
	nextID timerID
	seq    uint64
	mu     syncutil.Mutex
}

type scheduledTimer struct {
	timer clockwork.Timer
	name  string
	id    timerID
	seq   uint64
}

func newScheduler(clock clockwork.Clock) *scheduler {
	return &scheduler{
		clock:  clock,
		timers: make(map[timerID]*scheduledTimer),
		fired:  make(chan func(), firedBufferSize),
	}
}

// Fired returns the channel of due callbacks.
func (s *scheduler) Fired() <-chan func() {
	return s.fired
}

// After schedules fn to be delivered on the Fired channel after d. The name
// is for logging only. If the timer table is full the oldest entry is
// evicted and never runs.
func (s *scheduler) After(name string, d time.Duration, fn func()) timerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.timers) >= maxScheduledTimers {
		s.evictOldestLocked()
	}

	s.nextID++
	s.seq++
	id := s.nextID
	entry := &scheduledTimer{
		id:   id,
		name: name,
		seq:  s.seq,
	}
	entry.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if !live {
			// Cancelled or evicted between firing and delivery
			return
		}
		select {
		case s.fired <- fn:
		default:
			log.Warn().Str("timer", name).Msg("fired queue full, dropping callback")
		}
	})
	s.timers[id] = entry
	return id
}

// Cancel stops a scheduled callback. Safe to call with a zero or stale ID.
func (s *scheduler) Cancel(id timerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.timers[id]; ok {
		entry.timer.Stop()
		delete(s.timers, id)
	}
}

// CancelAll stops every scheduled callback.
func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
}

// Pending returns the number of scheduled callbacks.
func (s *scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *scheduler) evictOldestLocked() {
	var oldest *scheduledTimer
	for _, entry := range s.timers {
		if oldest == nil || entry.seq < oldest.seq {
			oldest = entry
		}
	}
	if oldest != nil {
		oldest.timer.Stop()
		delete(s.timers, oldest.id)
		log.Warn().Str("timer", oldest.name).Msg("timer table full, evicting oldest")
	}
}
