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
	"strconv"
	"strings"
)

// The edit helpers mirror the configuration surface: slider values are
// clamped into range, and text entries are parsed as whole numbers
// (percent for thresholds and volume, Hz for frequency). Text that does not
// parse leaves the handler untouched and reports false.

// SetMin sets the lower threshold, pushing the upper threshold up if needed
func (h *Handler) SetMin(value float64) {
	value = clampUnit(value)
	h.MinThreshold = value
	if value > h.MaxThreshold {
		h.MaxThreshold = value
	}
}

// SetMax sets the upper threshold, pulling the lower threshold down if needed
func (h *Handler) SetMax(value float64) {
	value = clampUnit(value)
	h.MaxThreshold = value
	if value < h.MinThreshold {
		h.MinThreshold = value
	}
}

// SetFrequency sets the tone frequency, clamped to [MinFrequencyHz, MaxFrequencyHz]
func (h *Handler) SetFrequency(hz int) {
	h.FrequencyHz = clampFrequency(hz)
}

// SetVolume sets the tone volume, clamped to [0, 1]
func (h *Handler) SetVolume(value float64) {
	h.Volume = clampUnit(value)
}

// SetWaveform selects a waveform by name. Unknown names keep the current waveform.
func (h *Handler) SetWaveform(name string) bool {
	w, err := ParseWaveform(name)
	if err != nil {
		return false
	}
	h.Waveform = w
	return true
}

// ApplyMinText parses a percent value (0-100) for the lower threshold
func (h *Handler) ApplyMinText(text string) bool {
	percent, ok := parseInt(text)
	if !ok {
		return false
	}
	h.SetMin(percentToUnit(percent))
	return true
}

// ApplyMaxText parses a percent value (0-100) for the upper threshold
func (h *Handler) ApplyMaxText(text string) bool {
	percent, ok := parseInt(text)
	if !ok {
		return false
	}
	h.SetMax(percentToUnit(percent))
	return true
}

// ApplyFrequencyText parses a frequency in Hz
func (h *Handler) ApplyFrequencyText(text string) bool {
	hz, ok := parseInt(text)
	if !ok {
		return false
	}
	h.SetFrequency(hz)
	return true
}

// ApplyVolumeText parses a percent value (0-100) for the volume
func (h *Handler) ApplyVolumeText(text string) bool {
	percent, ok := parseInt(text)
	if !ok {
		return false
	}
	h.SetVolume(percentToUnit(percent))
	return true
}

// Normalize clamps every parameter into its valid range and restores min <= max
func (h *Handler) Normalize() {
	h.MinThreshold = clampUnit(h.MinThreshold)
	h.MaxThreshold = clampUnit(h.MaxThreshold)
	if h.MinThreshold > h.MaxThreshold {
		h.MaxThreshold = h.MinThreshold
	}
	h.FrequencyHz = clampFrequency(h.FrequencyHz)
	h.Volume = clampUnit(h.Volume)
	if _, ok := waveformNames[h.Waveform]; !ok {
		h.Waveform = Sine
	}
}

func parseInt(text string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}
	return v, true
}

func percentToUnit(percent int) float64 {
	return float64(max(0, min(100, percent))) / 100.0
}

func clampUnit(v float64) float64 {
	// NaN compares false against everything, fold it to 0
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampFrequency(hz int) int {
	return max(MinFrequencyHz, min(MaxFrequencyHz, hz))
}
