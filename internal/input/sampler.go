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

package input

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Sampler defaults
const (
	DefaultPollInterval = time.Millisecond
	DefaultStopTimeout  = 500 * time.Millisecond
)

// SamplerConfig controls the polling goroutine
type SamplerConfig struct {
	PollInterval time.Duration
	StopTimeout  time.Duration
}

// Sampler holds exclusive access to one input device and polls its axes on a
// dedicated goroutine. Callers read the latest complete sample with Snapshot.
type Sampler struct {
	cfg     SamplerConfig
	backend InputBackend

	mu          sync.Mutex
	initialized bool
	device      Device
	selected    int
	axisCount   int
	stopCh      chan struct{}
	doneCh      chan struct{}

	snapMu   sync.RWMutex
	snapshot []float64
}

// NewSampler creates a sampler on backend. Nothing is opened until Select.
func NewSampler(backend InputBackend, cfg SamplerConfig) *Sampler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Sampler{
		cfg:      cfg,
		backend:  backend,
		selected: -1,
	}
}

// Enumerate lists attached devices. The backend is restarted first so
// devices plugged in since the last call show up, which also releases the
// selected device. Backend failures yield an empty list.
func (s *Sampler) Enumerate() []DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()

	if s.initialized {
		if err := s.backend.Quit(); err != nil {
			log.Printf("⚠️  Failed to shut input backend down: %v", err)
		}
		s.initialized = false
	}
	if err := s.initLocked(); err != nil {
		log.Printf("❌ Input backend unavailable: %v", err)
		return nil
	}

	devices, err := s.backend.Devices()
	if err != nil {
		log.Printf("❌ Failed to enumerate input devices: %v", err)
		return nil
	}
	return devices
}

// Devices lists attached devices without restarting the backend
func (s *Sampler) Devices() ([]DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initLocked(); err != nil {
		return nil, err
	}
	return s.backend.Devices()
}

func (s *Sampler) initLocked() error {
	if s.initialized {
		return nil
	}
	if err := s.backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize input backend: %w", err)
	}
	s.initialized = true
	return nil
}

// Select opens the device at index and starts polling it, replacing any
// previously selected device. It returns the number of axes. On failure no
// device is selected and the axis count is zero.
func (s *Sampler) Select(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()

	if err := s.initLocked(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	device, err := s.backend.Open(index)
	if err != nil {
		log.Printf("❌ Failed to open input device %d: %v", index, err)
		return 0, fmt.Errorf("failed to open input device %d: %w", index, err)
	}

	s.device = device
	s.selected = index
	s.axisCount = device.AxisCount()

	// Publish one sample before returning so Snapshot is never stale for the new device
	if values, err := s.read(device, s.axisCount); err == nil {
		s.publish(values)
	} else {
		s.publish(make([]float64, s.axisCount))
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.pollLoop(device, s.axisCount, s.stopCh, s.doneCh)

	log.Printf("🎮 Selected input device %d %q (%d axes)", index, device.Name(), s.axisCount)
	return s.axisCount, nil
}

// Clear stops polling and releases the selected device
func (s *Sampler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Close releases the device and shuts the backend down
func (s *Sampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	if !s.initialized {
		return nil
	}
	s.initialized = false
	if err := s.backend.Quit(); err != nil {
		return fmt.Errorf("failed to shut input backend down: %w", err)
	}
	return nil
}

func (s *Sampler) releaseLocked() {
	pending := s.stopLocked()

	if s.device != nil {
		device := s.device
		if pending != nil {
			// The poll goroutine may still be reading, close once it lets go
			go func() {
				<-pending
				closeDevice(device)
			}()
		} else {
			closeDevice(device)
		}
		s.device = nil
	}
	s.selected = -1
	s.axisCount = 0
	s.publish(nil)
}

func closeDevice(device Device) {
	if err := device.Close(); err != nil {
		log.Printf("⚠️  Failed to close input device: %v", err)
	}
}

// stopLocked signals the polling goroutine and waits a bounded time for it
// to exit. On timeout it returns the channel closed when the goroutine
// finally does, otherwise nil.
func (s *Sampler) stopLocked() <-chan struct{} {
	if s.stopCh == nil {
		return nil
	}

	var pending <-chan struct{}
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-time.After(s.cfg.StopTimeout):
		log.Printf("⚠️  Input polling did not stop within %v", s.cfg.StopTimeout)
		pending = s.doneCh
	}
	s.stopCh = nil
	s.doneCh = nil
	return pending
}

func (s *Sampler) pollLoop(device Device, axisCount int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			values, err := s.read(device, axisCount)
			if err != nil {
				// Transient read failures keep the previous sample
				continue
			}
			select {
			case <-stop:
				// Released while reading, the sample belongs to the old device
				return
			default:
			}
			s.publish(values)
		}
	}
}

// read takes one complete sample, mapping raw [-1, 1] positions to [0, 1]
func (s *Sampler) read(device Device, axisCount int) ([]float64, error) {
	s.backend.Refresh()

	values := make([]float64, axisCount)
	for i := range values {
		raw, err := device.ReadAxis(i)
		if err != nil {
			return nil, err
		}
		values[i] = Normalize(raw)
	}
	return values, nil
}

func (s *Sampler) publish(values []float64) {
	s.snapMu.Lock()
	s.snapshot = values
	s.snapMu.Unlock()
}

// Snapshot returns a copy of the last complete sample, one value per axis.
// It is empty when no device is selected.
func (s *Sampler) Snapshot() []float64 {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()

	if s.snapshot == nil {
		return nil
	}
	values := make([]float64, len(s.snapshot))
	copy(values, s.snapshot)
	return values
}

// Selected returns the index of the selected device, or -1
func (s *Sampler) Selected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// AxisCount returns the number of axes of the selected device
func (s *Sampler) AxisCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axisCount
}

// Polling reports whether the polling goroutine is running
func (s *Sampler) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// Normalize maps a raw axis position in [-1, 1] to [0, 1]. Out of range
// input is clamped first.
func Normalize(raw float64) float64 {
	switch {
	case raw < -1:
		raw = -1
	case raw > 1:
		raw = 1
	}
	return (raw + 1) / 2
}
