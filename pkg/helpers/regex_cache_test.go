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

package helpers

import (
	"sync"
	"testing"
)

func TestRegexCache(t *testing.T) {
	cache := NewRegexCache()

	pattern := `Outlet (\d+)`

	// First compilation
	re1 := cache.MustCompile(pattern)
	if re1 == nil {
		t.Fatal("expected compiled regex, got nil")
	}

	// Second compilation should return cached version
	re2 := cache.MustCompile(pattern)
	if re1 != re2 {
		t.Fatal("expected cached regex instance, got different instance")
	}

	// Verify pattern works
	if !re1.MatchString("Outlet 12") {
		t.Error("regex should match Outlet 12")
	}
}

func TestRegexCacheCompile(t *testing.T) {
	cache := NewRegexCache()

	validPattern := `Reading:\s*([0-9.]+)`
	invalidPattern := `[`

	// Valid pattern
	re, err := cache.Compile(validPattern)
	if err != nil {
		t.Fatalf("expected no error for valid pattern, got: %v", err)
	}
	if re == nil {
		t.Fatal("expected compiled regex, got nil")
	}

	// Invalid pattern
	_, err = cache.Compile(invalidPattern)
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}

	// Valid pattern should be cached
	re2, err := cache.Compile(validPattern)
	if err != nil {
		t.Fatalf("expected no error for cached pattern, got: %v", err)
	}
	if re != re2 {
		t.Fatal("expected cached regex instance, got different instance")
	}
}

func TestRegexCacheConcurrent(t *testing.T) {
	cache := NewRegexCache()

	patterns := []string{
		`Outlet (\d+)`,
		`RMS Current:\s*([0-9.]+)\s*A`,
		`State:\s*(\d+)\s*on`,
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, p := range patterns {
					if cache.MustCompile(p) == nil {
						t.Error("expected compiled regex, got nil")
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
