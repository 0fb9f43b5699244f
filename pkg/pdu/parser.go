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
	"strconv"
	"strings"

	"github.com/PowerdeckProject/powerdeck-core/pkg/helpers"
	"github.com/rs/zerolog/log"
)

// maxBufferSize caps the response accumulator. A buffer past the cap is
// dropped rather than parsed, to bound memory under a flooding peer.
const maxBufferSize = 64 * 1024

// Protocol marker strings recognized in the accumulating buffer.
const (
	markerUsername   = "Username:"
	markerPassword   = "Password:"
	markerWelcome    = "Welcome"
	markerAuthFailed = "Authentication failed"
	markerConfirm    = "Do you wish to continue?"
)

// Parser accumulates the raw byte stream of one connection and recognizes
// logical units in it. The server may split writes at arbitrary byte
// boundaries, so every recognizer is a substring search over the whole
// buffer; a marker split across two chunks is simply not recognized until
// the rest of it lands.
type Parser struct {
	prompt string
	buf    []byte
}

// NewParser creates a parser recognizing responses terminated by the given
// literal shell prompt.
func NewParser(prompt string) *Parser {
	return &Parser{prompt: prompt}
}

// Append adds a received chunk to the buffer. If the buffer would exceed the
// hard cap it is dropped and cleared, and Append returns false.
func (p *Parser) Append(data []byte) bool {
	if len(p.buf)+len(data) > maxBufferSize {
		log.Warn().
			Int("buffered", len(p.buf)).
			Int("chunk", len(data)).
			Msg("response buffer over cap, dropping")
		p.buf = nil
		return false
	}
	p.buf = append(p.buf, data...)
	return true
}

// Clear empties the buffer. Called whenever a logical unit is recognized.
func (p *Parser) Clear() {
	p.buf = nil
}

// Len returns the number of buffered bytes.
func (p *Parser) Len() int {
	return len(p.buf)
}

func (p *Parser) contains(marker string) bool {
	return strings.Contains(string(p.buf), marker)
}

// HasUsernameChallenge reports whether the buffer holds the login username
// challenge.
func (p *Parser) HasUsernameChallenge() bool {
	return p.contains(markerUsername)
}

// HasPasswordChallenge reports whether the buffer holds the password
// challenge.
func (p *Parser) HasPasswordChallenge() bool {
	return p.contains(markerPassword)
}

// HasWelcome reports whether the buffer holds the successful-login banner.
func (p *Parser) HasWelcome() bool {
	return p.contains(markerWelcome)
}

// HasAuthFailure reports whether the buffer holds the authentication failure
// message.
func (p *Parser) HasAuthFailure() bool {
	return p.contains(markerAuthFailed)
}

// HasConfirmPrompt reports whether the buffer holds a server-side yes/no
// confirmation prompt.
func (p *Parser) HasConfirmPrompt() bool {
	return p.contains(markerConfirm)
}

// HasCompleteResponse reports whether the buffer holds a full response
// terminated by the shell prompt. A chunk boundary inside the prompt string
// means this stays false until the rest arrives.
func (p *Parser) HasCompleteResponse() bool {
	return p.contains(p.prompt)
}

// TakeResponse returns the buffered response text and clears the buffer.
func (p *Parser) TakeResponse() string {
	resp := string(p.buf)
	p.buf = nil
	return resp
}

// SensorReadings holds the optional sensor fields of a response. Each field
// is an independent best-effort match; presence of one implies nothing about
// the others.
type SensorReadings struct {
	CurrentAmps *float64
	ActivePower *float64
	Temperature *float64
	Humidity    *float64
}

// OutletReading is one parsed outlet line.
type OutletReading struct {
	Name  string
	Index int
	On    bool
}

// GroupReading is one parsed group listing entry.
type GroupReading struct {
	Name     string
	Index    int
	OnCount  int
	OffCount int
}

// On reports the derived group power state: on iff no member is off and at
// least one member is on. A group with zero members reads as off.
func (g *GroupReading) On() bool {
	return g.OffCount == 0 && g.OnCount > 0
}

const (
	currentPattern = `RMS Current:\s*([0-9.]+)\s*A`
	readingPattern = `Reading:\s*([0-9.]+)\s*(deg C|W|%)`
	outletPattern  = `Outlet (\d+)(?:\s*-\s*([^:\r\n]+?))?\s*:\s*Power state:\s*(On|Off)`
	groupPattern   = `(?s)Outlet Group (\d+)\s*-\s*([^:\r\n]+)[:\r\n].*?State:\s*(\d+)\s*on\W+(\d+)\s*off`
)

// ExtractSensors pulls the sensor fields out of a complete response. Fields
// that fail to parse are skipped, never aborting extraction of the rest;
// skipped reports how many matched fields were dropped.
func ExtractSensors(resp string) (out SensorReadings, skipped int) {
	currentRe := helpers.GlobalRegexCache.MustCompile(currentPattern)
	if m := currentRe.FindStringSubmatch(resp); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.CurrentAmps = &v
		} else {
			log.Debug().Str("value", m[1]).Msg("unparseable RMS current reading")
			skipped++
		}
	}

	readingRe := helpers.GlobalRegexCache.MustCompile(readingPattern)
	for _, m := range readingRe.FindAllStringSubmatch(resp, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			log.Debug().Str("value", m[1]).Msg("unparseable sensor reading")
			skipped++
			continue
		}
		val := v
		switch m[2] {
		case "W":
			out.ActivePower = &val
		case "deg C":
			out.Temperature = &val
		case "%":
			out.Humidity = &val
		}
	}

	return out, skipped
}

// ExtractOutlets pulls every outlet power-state line out of a response.
// Malformed or out-of-range lines are skipped and counted.
func ExtractOutlets(resp string) ([]OutletReading, int) {
	re := helpers.GlobalRegexCache.MustCompile(outletPattern)
	matches := re.FindAllStringSubmatch(resp, -1)
	readings := make([]OutletReading, 0, len(matches))
	skipped := 0
	for _, m := range matches {
		index, err := strconv.Atoi(m[1])
		if err != nil || index < 1 || index > NumOutlets {
			log.Debug().Str("index", m[1]).Msg("outlet index out of range")
			skipped++
			continue
		}
		readings = append(readings, OutletReading{
			Index: index,
			Name:  strings.TrimSpace(m[2]),
			On:    m[3] == "On",
		})
	}
	return readings, skipped
}

// ExtractGroups pulls every group listing entry out of a response.
// Malformed or out-of-range entries are skipped and counted.
func ExtractGroups(resp string) ([]GroupReading, int) {
	re := helpers.GlobalRegexCache.MustCompile(groupPattern)
	matches := re.FindAllStringSubmatch(resp, -1)
	readings := make([]GroupReading, 0, len(matches))
	skipped := 0
	for _, m := range matches {
		index, err := strconv.Atoi(m[1])
		if err != nil || index < 1 || index > NumGroups {
			log.Debug().Str("index", m[1]).Msg("group index out of range")
			skipped++
			continue
		}
		onCount, err := strconv.Atoi(m[3])
		if err != nil {
			skipped++
			continue
		}
		offCount, err := strconv.Atoi(m[4])
		if err != nil {
			skipped++
			continue
		}
		readings = append(readings, GroupReading{
			Index:    index,
			Name:     strings.TrimSpace(m[2]),
			OnCount:  onCount,
			OffCount: offCount,
		})
	}
	return readings, skipped
}

// IsGroupListing reports whether a response carries group listing output.
// Group responses are more authoritative for member outlets than a stale
// individual listing, so the session treats them differently.
func IsGroupListing(resp string) bool {
	return strings.Contains(resp, "Outlet Group")
}
