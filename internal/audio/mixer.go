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

package audio

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/pedal-assist/internal/handler"
)

// Default stream settings
const (
	DefaultSampleRate          = 44100
	DefaultBufferSize          = 512
	DefaultChannels            = 1
	DefaultDeviceCheckInterval = time.Second
)

// MixerConfig holds the output stream settings
type MixerConfig struct {
	SampleRate          float64
	BufferSize          int
	DeviceCheckInterval time.Duration
}

// DefaultMixerConfig returns 44.1 kHz mono output in 512 frame buffers
func DefaultMixerConfig() MixerConfig {
	return MixerConfig{
		SampleRate:          DefaultSampleRate,
		BufferSize:          DefaultBufferSize,
		DeviceCheckInterval: DefaultDeviceCheckInterval,
	}
}

// MixerStats counts rendered buffers and buffers replaced by silence because
// the control thread held the tone set
type MixerStats struct {
	Rendered uint64
	Dropped  uint64
}

type activeTone struct {
	params handler.Handler
	phase  int
}

// Mixer sums every active tone into a single output stream.
//
// The tone set is shared between the control thread (Start, Stop, Update)
// and the backend's real-time callback. The callback never waits for it:
// if the lock is busy it writes one buffer of silence instead.
type Mixer struct {
	cfg     MixerConfig
	backend AudioBackend

	mu     sync.Mutex
	tones  map[string]*activeTone
	mixBuf []float64

	streamMu        sync.Mutex
	stream          StreamInterface
	device          string
	backendDown     bool
	lastDeviceCheck time.Time

	rendered atomic.Uint64
	dropped  atomic.Uint64
}

// NewMixer creates a mixer on backend. No stream is opened until Reopen.
func NewMixer(backend AudioBackend, cfg MixerConfig) *Mixer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.DeviceCheckInterval <= 0 {
		cfg.DeviceCheckInterval = DefaultDeviceCheckInterval
	}

	return &Mixer{
		cfg:     cfg,
		backend: backend,
		tones:   make(map[string]*activeTone),
		mixBuf:  make([]float64, cfg.BufferSize*DefaultChannels),
	}
}

// Config returns the settings the mixer was created with, defaults applied
func (m *Mixer) Config() MixerConfig {
	return m.cfg
}

// Start begins playing h's tone from phase zero. Starting an id that is
// already playing does nothing.
func (m *Mixer) Start(h *handler.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tones[h.ID]; ok {
		return
	}
	m.tones[h.ID] = &activeTone{params: *h}
}

// Stop silences the tone with the given id and discards its phase
func (m *Mixer) Stop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tones, id)
}

// Update replaces the parameters of a playing tone, keeping its phase.
// Inactive ids are ignored.
func (m *Mixer) Update(h *handler.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tone, ok := m.tones[h.ID]; ok {
		tone.params = *h
	}
}

// ActiveCount returns the number of playing tones
func (m *Mixer) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tones)
}

// IsPlaying reports whether id is in the active set
func (m *Mixer) IsPlaying(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tones[id]
	return ok
}

// Phase returns the phase accumulator of a playing tone
func (m *Mixer) Phase(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tone, ok := m.tones[id]
	if !ok {
		return 0, false
	}
	return tone.phase, true
}

// Stats returns render counters
func (m *Mixer) Stats() MixerStats {
	return MixerStats{
		Rendered: m.rendered.Load(),
		Dropped:  m.dropped.Load(),
	}
}

// Render fills out with the next buffer of the mix. It is the stream callback.
func (m *Mixer) Render(out []float32) {
	if !m.mu.TryLock() {
		clear(out)
		m.dropped.Add(1)
		return
	}
	defer m.mu.Unlock()

	m.rendered.Add(1)
	if len(m.tones) == 0 {
		clear(out)
		return
	}

	frames := len(out)
	if len(m.mixBuf) < frames {
		m.mixBuf = make([]float64, frames)
	}
	mix := m.mixBuf[:frames]
	clear(mix)

	sampleRate := int(m.cfg.SampleRate)
	for _, tone := range m.tones {
		synthesize(mix, &tone.params, tone.phase, m.cfg.SampleRate)
		tone.phase = (tone.phase + frames) % sampleRate
	}

	normalize(mix)
	for i, v := range mix {
		out[i] = float32(v)
	}
}

// Reopen closes the current stream, cycles the backend and opens a new
// stream on whatever the default output device is now. Playing tones carry
// over to the new stream. On failure audio stays disabled until the next
// successful Reopen.
func (m *Mixer) Reopen() error {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	return m.reopenLocked()
}

func (m *Mixer) reopenLocked() error {
	m.closeStreamLocked()

	if err := m.backend.Terminate(); err != nil {
		log.Printf("⚠️  Failed to terminate audio backend: %v", err)
	}
	if err := m.backend.Initialize(); err != nil {
		m.backendDown = true
		log.Printf("❌ Audio disabled, backend initialization failed: %v", err)
		return fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	m.backendDown = false

	// Remember the device before opening so a device that refuses to open is
	// not retried on every device check.
	device, err := m.backend.DefaultOutputDevice()
	if err != nil {
		log.Printf("⚠️  Could not identify default output device: %v", err)
	}
	m.device = device

	stream, err := m.backend.OpenStream(StreamParams{
		SampleRate: m.cfg.SampleRate,
		Channels:   DefaultChannels,
		BufferSize: m.cfg.BufferSize,
		Callback:   m.Render,
	})
	if err != nil {
		log.Printf("❌ Audio disabled, stream not opened on %q: %v", device, err)
		return fmt.Errorf("failed to open output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			log.Printf("⚠️  Failed to close unstarted stream: %v", closeErr)
		}
		log.Printf("❌ Audio disabled, stream did not start on %q: %v", device, err)
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	m.stream = stream
	log.Printf("🔊 Audio output open on %q (%.0f Hz, %d frames)", device, m.cfg.SampleRate, m.cfg.BufferSize)
	return nil
}

func (m *Mixer) closeStreamLocked() {
	if m.stream == nil {
		return
	}
	if err := m.stream.Stop(); err != nil {
		log.Printf("⚠️  Failed to stop audio stream: %v", err)
	}
	if err := m.stream.Close(); err != nil {
		log.Printf("⚠️  Failed to close audio stream: %v", err)
	}
	m.stream = nil
}

// CheckDeviceChange compares the default output device against the one the
// stream was opened on, at most once per DeviceCheckInterval, and reopens
// the stream when it moved. It reports whether a reopen was attempted.
// While the backend is down after a failed initialization every check
// retries the reopen instead, reporting only a retry that succeeded.
func (m *Mixer) CheckDeviceChange(now time.Time) bool {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()

	if !m.lastDeviceCheck.IsZero() && now.Sub(m.lastDeviceCheck) < m.cfg.DeviceCheckInterval {
		return false
	}
	m.lastDeviceCheck = now

	if m.backendDown {
		if err := m.reopenLocked(); err != nil {
			log.Printf("⚠️  Audio still unavailable: %v", err)
			return false
		}
		return true
	}

	current, err := m.backend.DefaultOutputDevice()
	if err != nil || current == m.device {
		return false
	}

	log.Printf("🔌 Default output device changed: %q -> %q", m.device, current)
	if err := m.reopenLocked(); err != nil {
		log.Printf("⚠️  Reopen after device change failed: %v", err)
	}
	return true
}

// Device returns the identity of the device the last Reopen targeted
func (m *Mixer) Device() string {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	return m.device
}

// StreamOpen reports whether an output stream is currently running
func (m *Mixer) StreamOpen() bool {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	return m.stream != nil
}

// Close silences every tone, closes the stream and shuts the backend down
func (m *Mixer) Close() error {
	m.mu.Lock()
	clear(m.tones)
	m.mu.Unlock()

	m.streamMu.Lock()
	defer m.streamMu.Unlock()

	m.closeStreamLocked()
	if err := m.backend.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate audio backend: %w", err)
	}
	return nil
}
