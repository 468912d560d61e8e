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

package trigger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loqalabs/pedal-assist/internal/handler"
	"github.com/loqalabs/pedal-assist/internal/input"
)

var (
	// ErrUnknownAxis is returned for an axis index the engine does not hold
	ErrUnknownAxis = errors.New("unknown axis")

	// ErrUnknownHandler is returned for a handler id not attached to the axis
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrDuplicateHandler is returned when a handler id is already in use
	ErrDuplicateHandler = errors.New("duplicate handler id")
)

// ToneSink receives start, stop and parameter edits for handler tones
type ToneSink interface {
	Start(h *handler.Handler)
	Stop(id string)
	Update(h *handler.Handler)
}

// EventSink is told about every trigger edge
type EventSink interface {
	PublishTrigger(event Event)
}

// Event describes one handler entering or leaving its window
type Event struct {
	HandlerID string    `json:"handler_id"`
	Axis      int       `json:"axis"`
	AxisName  string    `json:"axis_name"`
	Value     float64   `json:"value"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// Axis is one input channel with its alert zones
type Axis struct {
	Index    int
	Name     string
	Value    float64
	Handlers []*handler.Handler
}

// Engine evaluates every handler against the latest axis values and turns
// window entry and exit into tone start and stop calls. It is the only
// writer of Handler.IsTriggered.
type Engine struct {
	mu     sync.Mutex
	tones  ToneSink
	events EventSink
	axes   []*Axis
	now    func() time.Time
}

// NewEngine creates an engine driving tones. events may be nil.
func NewEngine(tones ToneSink, events EventSink) *Engine {
	return &Engine{
		tones:  tones,
		events: events,
		now:    time.Now,
	}
}

// Reset replaces the axes with axisCount empty ones, silencing anything the
// old axes were playing
func (e *Engine) Reset(axisCount int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopAllLocked()

	e.axes = make([]*Axis, axisCount)
	for i := range e.axes {
		e.axes[i] = &Axis{Index: i, Name: input.AxisName(i)}
	}
}

// AxisCount returns the number of axes
func (e *Engine) AxisCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.axes)
}

// Evaluate feeds one snapshot through every handler. Values beyond the
// number of axes are ignored and each value is clamped to [0, 1].
//
// Only the sampled value is considered: a value that jumps across a narrow
// window between two snapshots never triggers it.
func (e *Engine) Evaluate(values []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, axis := range e.axes {
		if i >= len(values) {
			break
		}
		axis.Value = clamp(values[i])

		for _, h := range axis.Handlers {
			triggered := h.CheckTrigger(axis.Value)
			if triggered == h.IsTriggered {
				continue
			}

			h.IsTriggered = triggered
			if triggered {
				e.tones.Start(h)
			} else {
				e.tones.Stop(h.ID)
			}
			e.emit(axis, h)
		}
	}
}

func (e *Engine) emit(axis *Axis, h *handler.Handler) {
	if e.events == nil {
		return
	}
	e.events.PublishTrigger(Event{
		HandlerID: h.ID,
		Axis:      axis.Index,
		AxisName:  axis.Name,
		Value:     axis.Value,
		Active:    h.IsTriggered,
		Timestamp: e.now(),
	})
}

// AddHandler attaches h to an axis. A nil h adds a default handler.
// The handler becomes active on the next Evaluate if the axis sits in its window.
func (e *Engine) AddHandler(axisIndex int, h *handler.Handler) (*handler.Handler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	axis, err := e.axisLocked(axisIndex)
	if err != nil {
		return nil, err
	}

	if h == nil {
		h = handler.New()
	}
	if _, _, found := e.findLocked(h.ID); found {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateHandler, h.ID)
	}

	h.Normalize()
	h.IsTriggered = false
	axis.Handlers = append(axis.Handlers, h)
	return h, nil
}

// DeleteHandler removes a handler, stopping its tone first if it is sounding
func (e *Engine) DeleteHandler(axisIndex int, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	axis, err := e.axisLocked(axisIndex)
	if err != nil {
		return err
	}

	for i, h := range axis.Handlers {
		if h.ID != id {
			continue
		}
		e.tones.Stop(id)
		h.IsTriggered = false
		axis.Handlers = append(axis.Handlers[:i], axis.Handlers[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s on axis %d", ErrUnknownHandler, id, axisIndex)
}

// UpdateHandler applies edit to a handler and forwards the new parameters to
// the tone if it is sounding. The window itself is re-checked on the next Evaluate.
// The id and trigger state are kept, the id keys the handler's tone.
func (e *Engine) UpdateHandler(axisIndex int, id string, edit func(h *handler.Handler)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	axis, err := e.axisLocked(axisIndex)
	if err != nil {
		return err
	}

	for _, h := range axis.Handlers {
		if h.ID != id {
			continue
		}
		triggered := h.IsTriggered
		edit(h)
		h.ID = id
		h.IsTriggered = triggered
		if h.IsTriggered {
			e.tones.Update(h)
		}
		return nil
	}
	return fmt.Errorf("%w: %s on axis %d", ErrUnknownHandler, id, axisIndex)
}

// StopAll silences every sounding handler
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopAllLocked()
}

func (e *Engine) stopAllLocked() {
	for _, axis := range e.axes {
		for _, h := range axis.Handlers {
			if h.IsTriggered {
				e.tones.Stop(h.ID)
				h.IsTriggered = false
			}
		}
	}
}

// TriggeredCount returns how many handlers are inside their window
func (e *Engine) TriggeredCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, axis := range e.axes {
		for _, h := range axis.Handlers {
			if h.IsTriggered {
				count++
			}
		}
	}
	return count
}

// Axes returns a copy of every axis and its handlers
func (e *Engine) Axes() []Axis {
	e.mu.Lock()
	defer e.mu.Unlock()

	axes := make([]Axis, len(e.axes))
	for i, axis := range e.axes {
		axes[i] = Axis{Index: axis.Index, Name: axis.Name, Value: axis.Value}
		axes[i].Handlers = make([]*handler.Handler, len(axis.Handlers))
		for j, h := range axis.Handlers {
			copied := *h
			axes[i].Handlers[j] = &copied
		}
	}
	return axes
}

// Handler returns a copy of the handler with the given id
func (e *Engine) Handler(id string) (handler.Handler, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, h, found := e.findLocked(id)
	if !found {
		return handler.Handler{}, false
	}
	return *h, true
}

func (e *Engine) axisLocked(index int) (*Axis, error) {
	if index < 0 || index >= len(e.axes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAxis, index)
	}
	return e.axes[index], nil
}

func (e *Engine) findLocked(id string) (*Axis, *handler.Handler, bool) {
	for _, axis := range e.axes {
		for _, h := range axis.Handlers {
			if h.ID == id {
				return axis, h, true
			}
		}
	}
	return nil, nil, false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
