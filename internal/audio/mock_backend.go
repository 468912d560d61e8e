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
	"time"
)

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	initError          error
	terminateError     error
	createStreamError  error
	deviceError        error
	streamStartError   error
	defaultDevice      string
	simulateRealTiming bool
	initCount          int
	terminateCount     int
	renderedAudioData  [][]float32
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:           make(map[string]*MockStream),
		defaultDevice:     "mock:speakers",
		renderedAudioData: make([][]float32, 0),
	}
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetTerminateError configures the backend to return an error on Terminate()
func (m *MockAudioBackend) SetTerminateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetStreamStartError makes streams opened from now on fail their Start()
func (m *MockAudioBackend) SetStreamStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamStartError = err
}

// SetDefaultDevice changes the identity reported as the default output device
func (m *MockAudioBackend) SetDefaultDevice(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultDevice = name
}

// SetDeviceError configures DefaultOutputDevice() to fail
func (m *MockAudioBackend) SetDeviceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceError = err
}

// SetSimulateRealTiming makes started streams pull buffers on a ticker like a sound card would
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// GetRenderedAudioData returns every buffer pulled from stream callbacks
func (m *MockAudioBackend) GetRenderedAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.renderedAudioData))
	copy(result, m.renderedAudioData)
	return result
}

// StreamsOpened returns how many streams were created over the backend's lifetime
func (m *MockAudioBackend) StreamsOpened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCounter
}

// OpenStreams returns how many streams are currently open
func (m *MockAudioBackend) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// InitCount returns how many times Initialize succeeded
func (m *MockAudioBackend) InitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCount
}

// IsInitialized reports whether the backend is initialized
func (m *MockAudioBackend) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// LatestStream returns the most recently opened stream that is still open
func (m *MockAudioBackend) LatestStream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *MockStream
	for _, s := range m.streams {
		if latest == nil || s.seq > latest.seq {
			latest = s
		}
	}
	return latest
}

// Pump pulls one buffer of frames from the latest open stream
func (m *MockAudioBackend) Pump(frames int) ([]float32, error) {
	stream := m.LatestStream()
	if stream == nil {
		return nil, ErrStreamNotOpen
	}
	return stream.Pump(frames)
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	m.initCount++
	return nil
}

// Terminate terminates the mock audio subsystem
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminateError != nil {
		return m.terminateError
	}

	m.initialized = false
	m.terminateCount++
	return nil
}

// OpenStream creates a mock output stream
func (m *MockAudioBackend) OpenStream(params StreamParams) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, ErrBackendNotInitialized
	}

	if m.createStreamError != nil {
		return nil, m.createStreamError
	}

	if params.Callback == nil {
		return nil, fmt.Errorf("stream callback is nil")
	}

	streamID := fmt.Sprintf("output_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		seq:                m.streamCounter,
		backend:            m,
		params:             params,
		device:             m.defaultDevice,
		isOpen:             true,
		simulateRealTiming: m.simulateRealTiming,
		startError:         m.streamStartError,
	}

	m.streams[streamID] = stream
	return stream, nil
}

// DefaultOutputDevice returns the configured device identity
func (m *MockAudioBackend) DefaultOutputDevice() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deviceError != nil {
		return "", m.deviceError
	}
	return m.defaultDevice, nil
}

func (m *MockAudioBackend) recordBuffer(data []float32) {
	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	m.mu.Lock()
	m.renderedAudioData = append(m.renderedAudioData, dataCopy)
	m.mu.Unlock()
}

func (m *MockAudioBackend) removeStream(id string) {
	m.mu.Lock()
	delete(m.streams, id)
	m.mu.Unlock()
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu                 sync.Mutex
	id                 string
	seq                int
	backend            *MockAudioBackend
	params             StreamParams
	device             string
	isOpen             bool
	isActive           bool
	simulateRealTiming bool
	stopChannel        chan struct{}
	doneChannel        chan struct{}
	startError         error
	stopError          error
	closeError         error
}

// SetStartError configures the stream to return an error on Start()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// SetStopError configures the stream to return an error on Stop()
func (m *MockStream) SetStopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopError = err
}

// SetCloseError configures the stream to return an error on Close()
func (m *MockStream) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeError = err
}

// Params returns the parameters the stream was opened with
func (m *MockStream) Params() StreamParams {
	return m.params
}

// Device returns the default device identity at the time the stream was opened
func (m *MockStream) Device() string {
	return m.device
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}

	if !m.isOpen {
		return ErrStreamNotOpen
	}

	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true

	if m.simulateRealTiming {
		m.stopChannel = make(chan struct{})
		m.doneChannel = make(chan struct{})
		go m.simulatePlayback(m.stopChannel, m.doneChannel)
	}

	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopError != nil {
		return m.stopError
	}

	m.stopLocked()
	return nil
}

func (m *MockStream) stopLocked() {
	if !m.isActive {
		return
	}
	m.isActive = false

	if m.stopChannel != nil {
		close(m.stopChannel)
		done := m.doneChannel
		m.stopChannel = nil
		m.doneChannel = nil

		// Release the lock while the playback goroutine winds down
		m.mu.Unlock()
		<-done
		m.mu.Lock()
	}
}

// Close closes the mock stream
func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeError != nil {
		return m.closeError
	}

	if !m.isOpen {
		return nil // Already closed
	}

	m.stopLocked()
	m.isOpen = false
	m.backend.removeStream(m.id)
	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

// Pump invokes the stream callback for one buffer, as the audio thread would
func (m *MockStream) Pump(frames int) ([]float32, error) {
	m.mu.Lock()
	active := m.isActive
	m.mu.Unlock()

	if !active {
		return nil, fmt.Errorf("stream not active")
	}

	buffer := make([]float32, frames*m.params.Channels)
	m.params.Callback(buffer)
	m.backend.recordBuffer(buffer)
	return buffer, nil
}

// simulatePlayback pulls buffers at the rate a real device would
func (m *MockStream) simulatePlayback(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := time.Duration(float64(m.params.BufferSize) / m.params.SampleRate * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buffer := make([]float32, m.params.BufferSize*m.params.Channels)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.params.Callback(buffer)
			m.backend.recordBuffer(buffer)
		}
	}
}
