// Copyright 2026 The CloudSync Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimulatedClock_NowReflectsStartTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSimulatedClock(start)
	assert.Equal(t, start, sc.Now())
}

func TestSimulatedClock_AfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSimulatedClock(start)

	ch := sc.After(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	sc.AdvanceTime(500 * time.Millisecond)
	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(500*time.Millisecond), fired)
	default:
		t.Fatal("After did not fire once the target time was reached")
	}
}

func TestSimulatedClock_AfterWithZeroDurationFiresImmediately(t *testing.T) {
	sc := NewSimulatedClock(time.Now())
	ch := sc.After(0)
	select {
	case <-ch:
	default:
		t.Fatal("a zero-duration After should fire without waiting for AdvanceTime")
	}
}

func TestSimulatedClock_SetTimeFiresPendingPastTargets(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSimulatedClock(start)

	ch := sc.After(time.Hour)
	sc.SetTime(start.Add(2 * time.Hour))

	select {
	case <-ch:
	default:
		t.Fatal("SetTime past the target should fire the pending After")
	}
}
