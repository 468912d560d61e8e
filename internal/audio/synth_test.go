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
	"testing"

	"github.com/loqalabs/pedal-assist/internal/handler"
	"github.com/stretchr/testify/assert"
)

// At 441 Hz and 44.1 kHz one cycle spans exactly 100 samples
const (
	testFreq       = 441
	testSampleRate = 44100.0
)

func TestSynthesizeWaveforms(t *testing.T) {
	tests := []struct {
		name     string
		waveform handler.Waveform
		samples  map[int]float64
	}{
		{
			name:     "sine",
			waveform: handler.Sine,
			samples:  map[int]float64{0: 0, 25: 1, 75: -1},
		},
		{
			name:     "sawtooth",
			waveform: handler.Sawtooth,
			samples:  map[int]float64{0: -1, 25: -0.5, 50: 0, 75: 0.5},
		},
		{
			name:     "square",
			waveform: handler.Square,
			samples:  map[int]float64{0: 0, 10: 1, 25: 1, 60: -1, 75: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tone := testTone(testFreq, 1.0, tt.waveform)
			buf := make([]float64, 100)
			synthesize(buf, tone, 0, testSampleRate)

			for i, want := range tt.samples {
				assert.InDelta(t, want, buf[i], 1e-9, "sample %d", i)
			}
		})
	}
}

func TestSynthesizePhaseOffset(t *testing.T) {
	tone := testTone(testFreq, 1.0, handler.Sine)
	buf := make([]float64, 10)
	synthesize(buf, tone, 25, testSampleRate)

	assert.InDelta(t, 1.0, buf[0], 1e-9, "phase 25 should start at the crest")
}

func TestSynthesizeScalesAndAccumulates(t *testing.T) {
	tone := testTone(testFreq, 0.25, handler.Sawtooth)
	buf := make([]float64, 100)
	for i := range buf {
		buf[i] = 1
	}

	synthesize(buf, tone, 0, testSampleRate)

	assert.InDelta(t, 0.75, buf[0], 1e-9, "sawtooth starts at -1, scaled by volume and added")
	assert.InDelta(t, 1.0, buf[50], 1e-9)
}

func TestNormalize(t *testing.T) {
	t.Run("overshoot_scaled_by_peak", func(t *testing.T) {
		buf := []float64{0.5, -2, 1}
		normalize(buf)
		assert.Equal(t, []float64{0.25, -1, 0.5}, buf)
	})

	t.Run("within_range_untouched", func(t *testing.T) {
		buf := []float64{0.5, -1, 0.25}
		normalize(buf)
		assert.Equal(t, []float64{0.5, -1, 0.25}, buf)
	})

	t.Run("silence_untouched", func(t *testing.T) {
		buf := make([]float64, 8)
		normalize(buf)
		assert.Equal(t, make([]float64, 8), buf)
	})
}
