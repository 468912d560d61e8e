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
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const beepDeviceName = "beep:speaker"

// BeepBackend implements AudioBackend through beep's speaker package.
// The speaker is process-global, so only one stream is live at a time.
type BeepBackend struct {
	mu          sync.Mutex
	initialized bool
	speakerUp   bool
}

// NewBeepBackend creates a beep speaker backend
func NewBeepBackend() *BeepBackend {
	return &BeepBackend{}
}

// Initialize marks the backend ready; the speaker is initialised per stream
func (b *BeepBackend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

// Terminate closes the speaker
func (b *BeepBackend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.speakerUp {
		speaker.Close()
		b.speakerUp = false
	}
	b.initialized = false
	return nil
}

// OpenStream (re)initialises the speaker at the requested rate and wraps the
// callback in a paused beep.Ctrl that Start un-pauses
func (b *BeepBackend) OpenStream(params StreamParams) (StreamInterface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, ErrBackendNotInitialized
	}
	if params.Callback == nil {
		return nil, fmt.Errorf("stream callback is nil")
	}

	if err := speaker.Init(beep.SampleRate(int(params.SampleRate)), params.BufferSize); err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}
	b.speakerUp = true

	mono := make([]float32, params.BufferSize)
	callback := params.Callback
	streamer := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if len(mono) < len(samples) {
			mono = make([]float32, len(samples))
		}
		buf := mono[:len(samples)]
		callback(buf)
		for i, s := range buf {
			samples[i][0] = float64(s)
			samples[i][1] = float64(s)
		}
		return len(samples), true
	})

	ctrl := &beep.Ctrl{Streamer: streamer, Paused: true}
	speaker.Play(ctrl)

	return &BeepStream{ctrl: ctrl, open: true}, nil
}

// DefaultOutputDevice returns a fixed identity; beep always plays on the system default
func (b *BeepBackend) DefaultOutputDevice() (string, error) {
	return beepDeviceName, nil
}

// BeepStream implements StreamInterface over a beep.Ctrl
type BeepStream struct {
	mu   sync.Mutex
	ctrl *beep.Ctrl
	open bool
}

// Start un-pauses the streamer
func (s *BeepStream) Start() error {
	return s.setPaused(false)
}

// Stop pauses the streamer
func (s *BeepStream) Stop() error {
	return s.setPaused(true)
}

func (s *BeepStream) setPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrStreamNotOpen
	}
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// Close detaches the streamer from the speaker
func (s *BeepStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrStreamNotOpen
	}
	speaker.Lock()
	s.ctrl.Paused = true
	s.ctrl.Streamer = nil
	speaker.Unlock()
	speaker.Clear()
	s.open = false
	return nil
}

// IsActive returns true while the streamer is open and not paused
func (s *BeepStream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return false
	}
	speaker.Lock()
	defer speaker.Unlock()
	return !s.ctrl.Paused
}
