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

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements AudioBackend using the real PortAudio library
type PortAudioBackend struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem.
// PortAudio snapshots the device list at Initialize, so a Terminate/Initialize
// cycle is what makes a newly plugged default device visible.
func (p *PortAudioBackend) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// OpenStream opens a mono callback stream on the default output device
func (p *PortAudioBackend) OpenStream(params StreamParams) (StreamInterface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, ErrBackendNotInitialized
	}
	if params.Callback == nil {
		return nil, fmt.Errorf("stream callback is nil")
	}

	callback := params.Callback
	stream, err := portaudio.OpenDefaultStream(
		0,               // input channels (none for output stream)
		params.Channels, // output channels
		params.SampleRate,
		params.BufferSize,
		func(out []float32) {
			callback(out)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &PortAudioStream{stream: stream}, nil
}

// DefaultOutputDevice reports the host API and name of the default output device
func (p *PortAudioBackend) DefaultOutputDevice() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return "", ErrBackendNotInitialized
	}

	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return "", fmt.Errorf("failed to query default output device: %w", err)
	}
	if info.HostApi != nil {
		return fmt.Sprintf("%s/%s", info.HostApi.Name, info.Name), nil
	}
	return info.Name, nil
}

// PortAudioStream implements StreamInterface using PortAudio streams
type PortAudioStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	active bool
}

// Start starts the audio stream
func (p *PortAudioStream) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrStreamNotOpen
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.active = true
	return nil
}

// Stop stops the audio stream
func (p *PortAudioStream) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrStreamNotOpen
	}
	if !p.active {
		return nil
	}
	p.active = false
	return p.stream.Stop()
}

// Close closes the audio stream
func (p *PortAudioStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrStreamNotOpen
	}
	err := p.stream.Close()
	p.stream = nil
	p.active = false
	return err
}

// IsActive returns true between Start and Stop
// PortAudio doesn't expose this on the Go binding, we track state manually
func (p *PortAudioStream) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil && p.active
}
