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
	"math"

	"github.com/loqalabs/pedal-assist/internal/handler"
)

// synthesize adds len(dst) samples of one tone, scaled by its volume, onto dst.
// Sample i is taken at t = (phase+i)/sampleRate. The waveform is chosen once
// per call so the inner loops stay branch free.
func synthesize(dst []float64, tone *handler.Handler, phase int, sampleRate float64) {
	freq := float64(tone.FrequencyHz)
	volume := tone.Volume

	switch tone.Waveform {
	case handler.Sawtooth:
		for i := range dst {
			cycles := freq * float64(phase+i) / sampleRate
			dst[i] += volume * (2*(cycles-math.Floor(cycles)) - 1)
		}
	case handler.Square:
		for i := range dst {
			t := float64(phase+i) / sampleRate
			dst[i] += volume * sign(math.Sin(2*math.Pi*freq*t))
		}
	default:
		for i := range dst {
			t := float64(phase+i) / sampleRate
			dst[i] += volume * math.Sin(2*math.Pi*freq*t)
		}
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// normalize scales buf down so that its absolute peak is 1 when the sum of
// tones overshoots. Buffers already within range are left untouched.
func normalize(buf []float64) {
	peak := 0.0
	for _, v := range buf {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak <= 1 {
		return
	}
	for i := range buf {
		buf[i] /= peak
	}
}
