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

import "errors"

var (
	// ErrBackendNotInitialized is returned when a stream is requested before Initialize
	ErrBackendNotInitialized = errors.New("audio backend not initialized")

	// ErrStreamNotOpen is returned by operations that need an open output stream
	ErrStreamNotOpen = errors.New("audio stream not open")
)

// AudioBackend provides an abstraction layer for audio output
// This enables dependency injection and makes testing hardware-independent
type AudioBackend interface {
	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// OpenStream opens a callback-driven output stream on the current default device
	OpenStream(params StreamParams) (StreamInterface, error)

	// DefaultOutputDevice returns an identity for the current default output device,
	// used to notice when the system switches devices underneath an open stream
	DefaultOutputDevice() (string, error)
}

// StreamInterface abstracts audio stream operations
type StreamInterface interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream
	Stop() error

	// Close the audio stream and release resources
	Close() error

	// IsActive returns true if the stream is currently active
	IsActive() bool
}

// StreamCallback fills out with the next buffer of mono samples.
// It runs on the backend's real-time thread and must not block.
type StreamCallback func(out []float32)

// StreamParams holds parameters for stream creation
type StreamParams struct {
	SampleRate float64
	Channels   int
	BufferSize int
	Callback   StreamCallback
}
