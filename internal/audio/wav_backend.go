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
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth     = 16
	wavPCMFormat    = 1
	wavMaxAmplitude = 32767
)

// WAVFileBackend renders the stream callback in real time into a 16-bit PCM
// WAV file. It stands in for a sound card on headless machines and lets the
// alert mix be recorded and inspected. Each opened stream truncates the file.
type WAVFileBackend struct {
	mu          sync.Mutex
	path        string
	initialized bool
}

// NewWAVFileBackend creates a backend writing to path
func NewWAVFileBackend(path string) *WAVFileBackend {
	return &WAVFileBackend{path: path}
}

// Initialize marks the backend ready
func (w *WAVFileBackend) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path == "" {
		return fmt.Errorf("wav backend requires an output path")
	}
	w.initialized = true
	return nil
}

// Terminate marks the backend stopped
func (w *WAVFileBackend) Terminate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.initialized = false
	return nil
}

// OpenStream creates the WAV file and an encoder for it
func (w *WAVFileBackend) OpenStream(params StreamParams) (StreamInterface, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		return nil, ErrBackendNotInitialized
	}
	if params.Callback == nil {
		return nil, fmt.Errorf("stream callback is nil")
	}

	f, err := os.Create(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}

	sampleRate := int(params.SampleRate)
	encoder := wav.NewEncoder(f, sampleRate, wavBitDepth, params.Channels, wavPCMFormat)

	return &WAVFileStream{
		file:     f,
		encoder:  encoder,
		callback: params.Callback,
		interval: time.Duration(float64(params.BufferSize) / params.SampleRate * float64(time.Second)),
		samples:  make([]float32, params.BufferSize*params.Channels),
		buffer: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: params.Channels, SampleRate: sampleRate},
			Data:           make([]int, params.BufferSize*params.Channels),
			SourceBitDepth: wavBitDepth,
		},
	}, nil
}

// DefaultOutputDevice identifies the output file
func (w *WAVFileBackend) DefaultOutputDevice() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return "wav:" + w.path, nil
}

// WAVFileStream pulls buffers from the callback on a ticker and encodes them
type WAVFileStream struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *wav.Encoder
	callback StreamCallback
	interval time.Duration
	samples  []float32
	buffer   *goaudio.IntBuffer

	stopCh chan struct{}
	doneCh chan struct{}
	closed bool
}

// Start launches the render goroutine
func (s *WAVFileStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamNotOpen
	}
	if s.stopCh != nil {
		return fmt.Errorf("stream already active")
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.renderLoop(s.stopCh, s.doneCh)
	return nil
}

func (s *WAVFileStream) renderLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.renderOnce(); err != nil {
				log.Printf("❌ WAV output failed, stopping recording: %v", err)
				return
			}
		}
	}
}

// renderOnce is only called from the render goroutine
func (s *WAVFileStream) renderOnce() error {
	s.callback(s.samples)
	for i, v := range s.samples {
		s.buffer.Data[i] = int(v * wavMaxAmplitude)
	}
	return s.encoder.Write(s.buffer)
}

// Stop halts the render goroutine and waits for it to exit
func (s *WAVFileStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamNotOpen
	}
	s.stopLocked()
	return nil
}

func (s *WAVFileStream) stopLocked() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.doneCh = nil
}

// Close stops rendering and finalises the WAV header
func (s *WAVFileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamNotOpen
	}
	s.stopLocked()
	s.closed = true

	encErr := s.encoder.Close()
	fileErr := s.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalise wav file: %w", encErr)
	}
	return fileErr
}

// IsActive returns true while the render goroutine runs
func (s *WAVFileStream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.stopCh != nil
}
