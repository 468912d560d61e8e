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
	"sync"

	"github.com/veandco/go-sdl2/sdl"
)

// SDLBackend implements InputBackend on SDL's joystick API
type SDLBackend struct {
	mu          sync.Mutex
	initialized bool
}

// NewSDLBackend creates a new SDL joystick backend
func NewSDLBackend() *SDLBackend {
	return &SDLBackend{}
}

// Init starts SDL's joystick subsystem
func (b *SDLBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if err := sdl.InitSubSystem(sdl.INIT_JOYSTICK); err != nil {
		return fmt.Errorf("failed to initialize SDL joystick subsystem: %w", err)
	}
	b.initialized = true
	return nil
}

// Quit stops the joystick subsystem. SDL rebuilds its device list on the
// next Init, which is how hot-plugged devices become visible.
func (b *SDLBackend) Quit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil
	}
	sdl.QuitSubSystem(sdl.INIT_JOYSTICK)
	b.initialized = false
	return nil
}

// Devices lists attached joysticks
func (b *SDLBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, fmt.Errorf("SDL joystick subsystem not initialized")
	}

	count := sdl.NumJoysticks()
	if count < 0 {
		return nil, fmt.Errorf("failed to count joysticks: %w", sdl.GetError())
	}

	devices := make([]DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		devices = append(devices, DeviceInfo{Index: i, Name: sdl.JoystickNameForIndex(i)})
	}
	return devices, nil
}

// Open claims the joystick at index
func (b *SDLBackend) Open(index int) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, fmt.Errorf("%w: SDL joystick subsystem not initialized", ErrDeviceUnavailable)
	}
	if index < 0 || index >= sdl.NumJoysticks() {
		return nil, fmt.Errorf("%w: no joystick at index %d", ErrDeviceUnavailable, index)
	}

	joystick := sdl.JoystickOpen(index)
	if joystick == nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, sdl.GetError())
	}
	return &sdlDevice{joystick: joystick}, nil
}

// Refresh updates SDL's cached joystick state
func (b *SDLBackend) Refresh() {
	sdl.JoystickUpdate()
}

type sdlDevice struct {
	joystick *sdl.Joystick
}

func (d *sdlDevice) Name() string {
	return d.joystick.Name()
}

func (d *sdlDevice) AxisCount() int {
	return d.joystick.NumAxes()
}

// ReadAxis scales SDL's int16 axis range to [-1, 1]
func (d *sdlDevice) ReadAxis(axis int) (float64, error) {
	if !d.joystick.Attached() {
		return 0, ErrDeviceUnavailable
	}

	raw := d.joystick.Axis(axis)
	if raw < 0 {
		return float64(raw) / 32768, nil
	}
	return float64(raw) / 32767, nil
}

func (d *sdlDevice) Close() error {
	d.joystick.Close()
	return nil
}
