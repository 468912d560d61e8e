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

package handler

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Waveform selects the oscillator shape used for a handler's tone
type Waveform int

const (
	Sine Waveform = iota
	Sawtooth
	Square
)

// Parameter limits and defaults for a freshly added handler
const (
	MinFrequencyHz     = 100
	MaxFrequencyHz     = 2000
	DefaultFrequencyHz = 440
	DefaultVolume      = 0.5
	DefaultThreshold   = 1.0
)

var waveformNames = map[Waveform]string{
	Sine:     "sine",
	Sawtooth: "sawtooth",
	Square:   "square",
}

func (w Waveform) String() string {
	if name, ok := waveformNames[w]; ok {
		return name
	}
	return fmt.Sprintf("waveform(%d)", int(w))
}

// ParseWaveform converts a waveform name ("sine", "sawtooth", "square") into a Waveform
func ParseWaveform(name string) (Waveform, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for w, n := range waveformNames {
		if n == normalized {
			return w, nil
		}
	}
	return Sine, fmt.Errorf("unknown waveform %q", name)
}

// MarshalText implements encoding.TextMarshaler
func (w Waveform) MarshalText() ([]byte, error) {
	if _, ok := waveformNames[w]; !ok {
		return nil, fmt.Errorf("unknown waveform %d", int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (w *Waveform) UnmarshalText(text []byte) error {
	parsed, err := ParseWaveform(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Handler is one alert zone on an axis: a threshold window plus the tone
// that sounds while the axis value sits inside it.
//
// IsTriggered is derived state owned by the trigger engine. It only ever
// reflects MinThreshold <= value <= MaxThreshold at the last evaluation.
type Handler struct {
	ID           string   `json:"id"`
	MinThreshold float64  `json:"min_threshold"`
	MaxThreshold float64  `json:"max_threshold"`
	FrequencyHz  int      `json:"frequency_hz"`
	Volume       float64  `json:"volume"`
	Waveform     Waveform `json:"waveform"`
	IsTriggered  bool     `json:"is_triggered"`
}

// New creates a handler with the default zone (a 1.0..1.0 window, 440 Hz sine at half volume)
func New() *Handler {
	return &Handler{
		ID:           NewID(),
		MinThreshold: DefaultThreshold,
		MaxThreshold: DefaultThreshold,
		FrequencyHz:  DefaultFrequencyHz,
		Volume:       DefaultVolume,
		Waveform:     Sine,
	}
}

// NewID returns a short random identifier for a handler
func NewID() string {
	return uuid.NewString()[:8]
}

// CheckTrigger reports whether value lies inside the handler's window, both ends inclusive
func (h *Handler) CheckTrigger(value float64) bool {
	return h.MinThreshold <= value && value <= h.MaxThreshold
}
