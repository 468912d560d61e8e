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
	"context"
	"log"
	"sync"

	"github.com/eiannone/keyboard"

	"github.com/loqalabs/pedal-assist/internal/app"
	"github.com/loqalabs/pedal-assist/internal/input"
)

type keyAction int

const (
	actionNone keyAction = iota
	actionQuit
	actionReopen
	actionRescan
	actionNext
	actionPrev
	actionStatus
)

func actionForKey(char rune, key keyboard.Key) keyAction {
	switch {
	case key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
		return actionQuit
	case char == 'q' || char == 'Q':
		return actionQuit
	case char == 'r' || char == 'R':
		return actionReopen
	case char == 'd' || char == 'D':
		return actionRescan
	case char == 'n' || char == 'N':
		return actionNext
	case char == 'p' || char == 'P':
		return actionPrev
	case char == 's' || char == 'S':
		return actionStatus
	}
	return actionNone
}

// controller is the part of the app the console keys drive
type controller interface {
	RequestReopen() error
	Rescan() []input.DeviceInfo
	NextDevice() error
	PrevDevice() error
	Status() app.Status
}

// apply runs action against c and reports whether the app should quit
func apply(c controller, action keyAction) bool {
	switch action {
	case actionQuit:
		return true
	case actionReopen:
		if err := c.RequestReopen(); err != nil {
			log.Printf("⚠️  Audio reopen failed: %v", err)
		}
	case actionRescan:
		devices := c.Rescan()
		log.Printf("🎮 %d input device(s) found", len(devices))
	case actionNext:
		if err := c.NextDevice(); err != nil {
			log.Printf("⚠️  %v", err)
		}
	case actionPrev:
		if err := c.PrevDevice(); err != nil {
			log.Printf("⚠️  %v", err)
		}
	case actionStatus:
		logStatus(c.Status())
	}
	return false
}

func logStatus(s app.Status) {
	device := s.Device
	if device == "" {
		device = "no input device"
	}
	stream := "closed"
	if s.StreamOpen {
		stream = "open"
	}
	log.Printf("📊 %s (%d axes, %d handlers, %d triggered) | output %q %s | %d buffers, %d dropped",
		device, s.Axes, s.Handlers, s.Triggered, s.Output, stream, s.Mixer.Rendered, s.Mixer.Dropped)
}

// listenKeys reads console keys until ctx is done or a quit key calls quit.
// Without a terminal it logs a warning and returns.
func listenKeys(ctx context.Context, c controller, quit func()) {
	if err := keyboard.Open(); err != nil {
		log.Printf("⚠️  Keyboard controls disabled: %v", err)
		return
	}

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if apply(c, actionForKey(char, key)) {
				quit()
				return
			}
		}
	}()
}
