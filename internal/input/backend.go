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
	"errors"
	"strconv"
)

// ErrDeviceUnavailable is returned when an input device cannot be opened or read
var ErrDeviceUnavailable = errors.New("input device unavailable")

// DeviceInfo describes one enumerated input device
type DeviceInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// InputBackend provides an abstraction layer over the joystick/pedal API
// This enables dependency injection and makes testing hardware-independent
type InputBackend interface {
	// Init starts the input subsystem
	Init() error

	// Quit shuts the input subsystem down, invalidating every open device
	Quit() error

	// Devices lists the devices currently attached
	Devices() ([]DeviceInfo, error)

	// Open claims the device at index
	Open(index int) (Device, error)

	// Refresh pumps pending backend events so axis reads are current
	Refresh()
}

// Device is an opened multi-axis input device
type Device interface {
	Name() string

	AxisCount() int

	// ReadAxis returns the raw position of an axis in [-1, 1]
	ReadAxis(axis int) (float64, error)

	Close() error
}

var axisNames = []string{"X", "Y", "Z", "Rx", "Ry", "Rz", "Slider 1", "Slider 2"}

// AxisName returns the conventional display name of an axis, "Axis N" past the named ones
func AxisName(axis int) string {
	if axis >= 0 && axis < len(axisNames) {
		return axisNames[axis]
	}
	return "Axis " + strconv.Itoa(axis)
}
