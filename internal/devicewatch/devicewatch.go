/*
 * This file is part of Pedal Assist (https://github.com/loqalabs/pedal-assist).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package devicewatch

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for the watcher and the reopen debounce
const (
	DefaultWatchInterval  = time.Second
	DefaultReopenDebounce = time.Second
)

// Signal is a one-shot "device set changed" flag. Any number of Notify calls
// between two Takes collapse into a single pending change.
type Signal struct {
	pending atomic.Bool
}

// Notify marks a change as pending. Safe from any goroutine.
func (s *Signal) Notify() {
	s.pending.Store(true)
}

// Take reports whether a change was pending and clears it
func (s *Signal) Take() bool {
	return s.pending.Swap(false)
}

// Pending reports whether a change is waiting without clearing it
func (s *Signal) Pending() bool {
	return s.pending.Load()
}

// Debouncer gates a Signal so that reopens happen at most once per window.
// A notification arriving inside the window stays pending until it elapses.
type Debouncer struct {
	signal *Signal
	window time.Duration
	last   time.Time
}

// NewDebouncer wraps signal with a minimum spacing of window between firings
func NewDebouncer(signal *Signal, window time.Duration) *Debouncer {
	if window < 0 {
		window = 0
	}
	return &Debouncer{signal: signal, window: window}
}

// Ready consumes the pending change and returns true if one exists and the
// window since the last firing has passed. Only the control loop calls it.
func (d *Debouncer) Ready(now time.Time) bool {
	if !d.signal.Pending() {
		return false
	}
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		return false
	}
	if !d.signal.Take() {
		return false
	}
	d.last = now
	return true
}

// Mark records a reopen that happened for another reason, restarting the window
func (d *Debouncer) Mark(now time.Time) {
	d.last = now
}

// Probe returns a fingerprint of some device state, such as the default
// output identity or the number of attached controllers
type Probe func() (string, error)

// Watcher polls a set of probes and raises the signal when any fingerprint changes
type Watcher struct {
	signal   *Signal
	interval time.Duration

	mu     sync.Mutex
	probes map[string]Probe
	last   map[string]string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher raising signal
func NewWatcher(signal *Signal, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		signal:   signal,
		interval: interval,
		probes:   make(map[string]Probe),
		last:     make(map[string]string),
	}
}

// AddProbe registers a named probe. Its first reading becomes the baseline.
func (w *Watcher) AddProbe(name string, probe Probe) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.probes[name] = probe
	if value, err := probe(); err == nil {
		w.last[name] = value
	}
}

// Check runs every probe once and notifies if any reading changed.
// A probe that errors is skipped and keeps its previous reading.
func (w *Watcher) Check() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for name, probe := range w.probes {
		value, err := probe()
		if err != nil {
			continue
		}
		if previous, seen := w.last[name]; seen && previous != value {
			log.Printf("🔌 Device change detected (%s): %q -> %q", name, previous, value)
			changed = true
		}
		w.last[name] = value
	}

	if changed {
		w.signal.Notify()
	}
	return changed
}

// Start polls in the background until ctx is cancelled or Stop is called
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Check()
			}
		}
	}()
}

// Stop ends background polling and waits for it to finish
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
