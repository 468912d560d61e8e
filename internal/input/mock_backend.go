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
)

// MockInputBackend implements InputBackend for testing without hardware dependencies
type MockInputBackend struct {
	mu          sync.Mutex
	initialized bool
	devices     []*MockDevice
	initError   error
	listError   error
	openError   error
	initCount   int
	quitCount   int
	refreshes   int
}

// NewMockInputBackend creates a mock backend with the given devices attached
func NewMockInputBackend(devices ...*MockDevice) *MockInputBackend {
	return &MockInputBackend{devices: devices}
}

// SetInitError configures the backend to return an error on Init()
func (m *MockInputBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetListError configures the backend to return an error on Devices()
func (m *MockInputBackend) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listError = err
}

// SetOpenError configures the backend to return an error on Open()
func (m *MockInputBackend) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openError = err
}

// Attach plugs in another device
func (m *MockInputBackend) Attach(device *MockDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, device)
}

// Detach unplugs the device at index
func (m *MockInputBackend) Detach(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.devices) {
		return
	}
	m.devices[index].SetReadError(ErrDeviceUnavailable)
	m.devices = append(m.devices[:index], m.devices[index+1:]...)
}

// InitCount returns how many times Init succeeded
func (m *MockInputBackend) InitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCount
}

// QuitCount returns how many times Quit was called on an initialized backend
func (m *MockInputBackend) QuitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quitCount
}

// Refreshes returns how many times Refresh was called
func (m *MockInputBackend) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// Init starts the mock subsystem
func (m *MockInputBackend) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}
	m.initialized = true
	m.initCount++
	return nil
}

// Quit stops the mock subsystem
func (m *MockInputBackend) Quit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		m.quitCount++
	}
	m.initialized = false
	return nil
}

// Devices lists attached mock devices
func (m *MockInputBackend) Devices() ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock input backend not initialized")
	}
	if m.listError != nil {
		return nil, m.listError
	}

	devices := make([]DeviceInfo, len(m.devices))
	for i, d := range m.devices {
		devices[i] = DeviceInfo{Index: i, Name: d.Name()}
	}
	return devices, nil
}

// Open claims the mock device at index
func (m *MockInputBackend) Open(index int) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("%w: backend not initialized", ErrDeviceUnavailable)
	}
	if m.openError != nil {
		return nil, m.openError
	}
	if index < 0 || index >= len(m.devices) {
		return nil, fmt.Errorf("%w: no device at index %d", ErrDeviceUnavailable, index)
	}

	device := m.devices[index]
	device.open()
	return device, nil
}

// Refresh counts event pumps
func (m *MockInputBackend) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
}

// MockDevice implements Device with settable axis positions
type MockDevice struct {
	mu        sync.Mutex
	name      string
	axes      []float64
	readError error
	isOpen    bool
	reads     int
}

// NewMockDevice creates a device with axisCount axes, all centred
func NewMockDevice(name string, axisCount int) *MockDevice {
	return &MockDevice{name: name, axes: make([]float64, axisCount)}
}

// SetAxis sets the raw position of an axis in [-1, 1]
func (d *MockDevice) SetAxis(axis int, raw float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.axes[axis] = raw
}

// SetReadError makes every axis read fail until cleared with nil
func (d *MockDevice) SetReadError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readError = err
}

// IsOpen reports whether the device is currently claimed
func (d *MockDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isOpen
}

// Reads returns how many axis reads have been made
func (d *MockDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func (d *MockDevice) open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.isOpen = true
}

func (d *MockDevice) Name() string {
	return d.name
}

func (d *MockDevice) AxisCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.axes)
}

func (d *MockDevice) ReadAxis(axis int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reads++
	if d.readError != nil {
		return 0, d.readError
	}
	if !d.isOpen {
		return 0, ErrDeviceUnavailable
	}
	if axis < 0 || axis >= len(d.axes) {
		return 0, fmt.Errorf("axis %d out of range", axis)
	}
	return d.axes[axis], nil
}

func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.isOpen = false
	return nil
}
