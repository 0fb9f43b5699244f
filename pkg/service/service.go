/*
Powerdeck Core
Copyright (c) 2026 The Powerdeck Project Contributors.
SPDX-License-Identifier: GPL-3.0-or-later

This file is part of Powerdeck Core.

Powerdeck Core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Powerdeck Core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Powerdeck Core.  If not, see <http://www.gnu.org/licenses/>.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PowerdeckProject/powerdeck-core/pkg/config"
	"github.com/PowerdeckProject/powerdeck-core/pkg/controls"
	"github.com/PowerdeckProject/powerdeck-core/pkg/pdu"
	"github.com/PowerdeckProject/powerdeck-core/pkg/service/broker"
	"github.com/PowerdeckProject/powerdeck-core/pkg/service/publishers"
	"github.com/PowerdeckProject/powerdeck-core/pkg/transport"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// socketReadTimeout is how long a connection may sit idle before the
// transport declares it dead. With polling every 10 seconds, a minute of
// silence means the PDU stopped answering.
const socketReadTimeout = 60 * time.Second

// Service owns one session per configured PDU plus the shared intent
// broker and the optional MQTT bridge connecting brokers across hosts.
type Service struct {
	cfg      *config.Instance
	brk      *broker.Broker
	bridge   *publishers.MQTTBridge
	sessions []*pdu.Session
	panels   map[string]controls.Panel
}

// PanelFactory builds the control panel for one PDU. The default builds an
// in-memory panel; frontends substitute their own.
type PanelFactory func(pduName string) controls.Panel

// New builds a service from configuration. Sessions are created but not
// started until Run.
func New(cfg *config.Instance, panelFor PanelFactory) (*Service, error) {
	pdus := cfg.PDUs()
	if len(pdus) == 0 {
		return nil, errors.New("no PDUs configured")
	}
	if panelFor == nil {
		panelFor = func(string) controls.Panel { return controls.NewMemory() }
	}

	svc := &Service{
		cfg:    cfg,
		brk:    broker.NewBroker(),
		panels: make(map[string]controls.Panel, len(pdus)),
	}

	for _, p := range pdus {
		creds, ok := config.LookupCredentials(p.Name)
		if !ok {
			return nil, fmt.Errorf("no credentials configured for PDU %q", p.Name)
		}

		panel := panelFor(p.Name)
		tr := transport.NewTCP(p.Host, p.PortOrDefault(), socketReadTimeout)
		session := pdu.NewSession(pdu.Config{
			Name:                   p.Name,
			Username:               creds.Username,
			Password:               creds.Password,
			Prompt:                 p.PromptOrDefault(),
			PollInterval:           cfg.PollInterval(),
			LegacyBroadcastPowerOn: p.LegacyBroadcastPowerOn,
		}, tr, panel, svc.brk, clockwork.NewRealClock())

		svc.sessions = append(svc.sessions, session)
		svc.panels[p.Name] = panel
		log.Info().
			Str("pdu", p.Name).
			Str("host", p.Host).
			Int("port", p.PortOrDefault()).
			Msg("configured PDU session")
	}

	if bc := cfg.Broadcast(); bc.MQTTBroker != "" {
		svc.bridge = publishers.NewMQTTBridge(bc.MQTTBroker, bc.MQTTTopic, cfg.DeviceID(), svc.brk)
	}

	return svc, nil
}

// Sessions returns the running sessions, one per configured PDU.
func (s *Service) Sessions() []*pdu.Session {
	return s.sessions
}

// Panel returns the control panel for a PDU by name, or nil.
func (s *Service) Panel(name string) controls.Panel {
	return s.panels[name]
}

// Session returns the session for a PDU by name, or nil.
func (s *Service) Session(name string) *pdu.Session {
	for _, session := range s.sessions {
		if session.Name() == name {
			return session
		}
	}
	return nil
}

// Run starts every session and blocks until the context is cancelled or a
// session fails. The broker and bridge are torn down on the way out.
func (s *Service) Run(ctx context.Context) error {
	if s.bridge != nil {
		if err := s.bridge.Start(); err != nil {
			// coordination still works within this process
			log.Error().Err(err).Msg("mqtt bridge failed to start, continuing without it")
			s.bridge = nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, session := range s.sessions {
		session := session
		g.Go(func() error {
			if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("session %s: %w", session.Name(), err)
			}
			return nil
		})
	}

	err := g.Wait()

	if s.bridge != nil {
		s.bridge.Stop()
	}
	s.brk.Stop()

	if err != nil {
		return err
	}
	log.Info().Msg("service stopped")
	return nil
}
