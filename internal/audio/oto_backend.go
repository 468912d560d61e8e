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
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoDeviceName is reported as the device identity. oto always plays on the
// system default device and does not expose which one that is.
const otoDeviceName = "oto:default"

// OtoBackend implements AudioBackend on top of oto, which pulls samples
// through an io.Reader instead of invoking a callback.
type OtoBackend struct {
	mu          sync.Mutex
	ctx         *oto.Context
	sampleRate  int
	initialized bool
}

// NewOtoBackend creates an oto backend. The oto context is created lazily on
// the first stream because oto allows only one context per process, fixed to
// the sample rate it was created with.
func NewOtoBackend() *OtoBackend {
	return &OtoBackend{}
}

// Initialize marks the backend ready; the context itself is created on first use
func (o *OtoBackend) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.initialized = true
	return nil
}

// Terminate suspends output. The oto context cannot be destroyed and is reused
func (o *OtoBackend) Terminate() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.initialized = false
	if o.ctx != nil {
		return o.ctx.Suspend()
	}
	return nil
}

// OpenStream creates a player that renders through the stream callback
func (o *OtoBackend) OpenStream(params StreamParams) (StreamInterface, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialized {
		return nil, ErrBackendNotInitialized
	}
	if params.Callback == nil {
		return nil, fmt.Errorf("stream callback is nil")
	}
	if params.Channels != 1 {
		return nil, fmt.Errorf("oto backend supports mono output only, got %d channels", params.Channels)
	}

	sampleRate := int(params.SampleRate)
	if o.ctx == nil {
		bufferDuration := time.Duration(float64(params.BufferSize) / params.SampleRate * float64(time.Second))
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
			BufferSize:   bufferDuration,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create oto context: %w", err)
		}
		<-ready
		o.ctx = ctx
		o.sampleRate = sampleRate
	} else {
		if o.sampleRate != sampleRate {
			return nil, fmt.Errorf("oto context already running at %d Hz, cannot open %d Hz stream", o.sampleRate, sampleRate)
		}
		if err := o.ctx.Resume(); err != nil {
			return nil, fmt.Errorf("failed to resume oto context: %w", err)
		}
	}

	reader := &otoReader{
		callback: params.Callback,
		samples:  make([]float32, params.BufferSize),
	}
	player := o.ctx.NewPlayer(reader)
	player.SetBufferSize(params.BufferSize * 4)

	return &OtoStream{player: player}, nil
}

// DefaultOutputDevice returns a fixed identity, see otoDeviceName
func (o *OtoBackend) DefaultOutputDevice() (string, error) {
	return otoDeviceName, nil
}

// otoReader adapts a StreamCallback to the io.Reader oto pulls from
type otoReader struct {
	callback StreamCallback
	samples  []float32 // pre-allocated, grown only if oto asks for more
}

func (r *otoReader) Read(p []byte) (int, error) {
	numSamples := len(p) / 4
	if numSamples == 0 {
		return 0, nil
	}
	if len(r.samples) < numSamples {
		r.samples = make([]float32, numSamples)
	}
	samples := r.samples[:numSamples]

	r.callback(samples)

	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return numSamples * 4, nil
}

// OtoStream implements StreamInterface over an oto player
type OtoStream struct {
	mu     sync.Mutex
	player *oto.Player
	active bool
}

// Start begins playback
func (s *OtoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return ErrStreamNotOpen
	}
	s.player.Play()
	s.active = true
	return nil
}

// Stop pauses playback
func (s *OtoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return ErrStreamNotOpen
	}
	if s.active {
		s.player.Pause()
		s.active = false
	}
	return nil
}

// Close releases the player
func (s *OtoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return ErrStreamNotOpen
	}
	err := s.player.Close()
	s.player = nil
	s.active = false
	return err
}

// IsActive returns true while the player is playing
func (s *OtoStream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil && s.active
}
