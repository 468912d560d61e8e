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

package main

import (
	"fmt"

	"github.com/loqalabs/pedal-assist/internal/audio"
	"github.com/loqalabs/pedal-assist/internal/config"
	"github.com/loqalabs/pedal-assist/internal/input"
)

func newOutputBackend(cfg config.Config) (audio.AudioBackend, error) {
	switch cfg.OutputBackend {
	case config.BackendPortAudio:
		return audio.NewPortAudioBackend(), nil
	case config.BackendOto:
		return audio.NewOtoBackend(), nil
	case config.BackendBeep:
		return audio.NewBeepBackend(), nil
	case config.BackendWAV:
		return audio.NewWAVFileBackend(cfg.WAVPath), nil
	case config.BackendMock:
		return audio.NewMockAudioBackend(), nil
	default:
		return nil, fmt.Errorf("unknown output backend %q", cfg.OutputBackend)
	}
}

func newInputBackend() input.InputBackend {
	return input.NewSDLBackend()
}
