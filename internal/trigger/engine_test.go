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
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/pedal-assist/internal/audio"
	"github.com/loqalabs/pedal-assist/internal/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink records every tone call in order
type recordingSink struct {
	mu      sync.Mutex
	calls   []string
	updates []handler.Handler
}

func (r *recordingSink) Start(h *handler.Handler) { r.record("start:" + h.ID) }
func (r *recordingSink) Stop(id string)           { r.record("stop:" + id) }

func (r *recordingSink) Update(h *handler.Handler) {
	r.mu.Lock()
	r.updates = append(r.updates, *h)
	r.mu.Unlock()
	r.record("update:" + h.ID)
}

func (r *recordingSink) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingSink) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type recordingEvents struct {
	events []Event
}

func (r *recordingEvents) PublishTrigger(event Event) {
	r.events = append(r.events, event)
}

func zone(min, max float64) *handler.Handler {
	h := handler.New()
	h.MinThreshold = min
	h.MaxThreshold = max
	return h
}

func newTestEngine(t *testing.T, axes int) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	engine := NewEngine(sink, nil)
	engine.Reset(axes)
	return engine, sink
}

func TestEngineReset(t *testing.T) {
	engine, _ := newTestEngine(t, 3)

	axes := engine.Axes()
	require.Len(t, axes, 3)
	assert.Equal(t, "X", axes[0].Name)
	assert.Equal(t, "Z", axes[2].Name)
	assert.Equal(t, 2, axes[2].Index)
}

func TestEngineEdgeTriggering(t *testing.T) {
	t.Run("same_value_twice_starts_once", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, zone(0.2, 0.6))
		require.NoError(t, err)

		engine.Evaluate([]float64{0.4})
		engine.Evaluate([]float64{0.4})

		assert.Equal(t, []string{"start:" + h.ID}, sink.Calls())
		assert.Equal(t, 1, engine.TriggeredCount())
	})

	t.Run("leaving_window_stops", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, zone(0.2, 0.6))
		require.NoError(t, err)

		engine.Evaluate([]float64{0.4})
		engine.Evaluate([]float64{0.9})
		engine.Evaluate([]float64{0.95})

		assert.Equal(t, []string{"start:" + h.ID, "stop:" + h.ID}, sink.Calls())
		assert.Equal(t, 0, engine.TriggeredCount())
	})

	t.Run("overlapping_zones_sound_together", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		low, err := engine.AddHandler(0, zone(0.0, 0.7))
		require.NoError(t, err)
		high, err := engine.AddHandler(0, zone(0.5, 1.0))
		require.NoError(t, err)

		engine.Evaluate([]float64{0.6})

		assert.ElementsMatch(t, []string{"start:" + low.ID, "start:" + high.ID}, sink.Calls())
		assert.Equal(t, 2, engine.TriggeredCount())
	})

	t.Run("point_window", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, zone(0.3, 0.3))
		require.NoError(t, err)

		engine.Evaluate([]float64{0.29})
		engine.Evaluate([]float64{0.31})
		assert.Empty(t, sink.Calls())

		engine.Evaluate([]float64{0.3})
		assert.Equal(t, []string{"start:" + h.ID}, sink.Calls())
	})

	t.Run("jump_across_window_is_missed", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		_, err := engine.AddHandler(0, zone(0.4, 0.5))
		require.NoError(t, err)

		engine.Evaluate([]float64{0.1})
		engine.Evaluate([]float64{0.9})
		assert.Empty(t, sink.Calls(), "values are not interpolated between snapshots")
	})

	t.Run("values_are_clamped", func(t *testing.T) {
		engine, sink := newTestEngine(t, 2)
		top, err := engine.AddHandler(0, zone(1.0, 1.0))
		require.NoError(t, err)
		bottom, err := engine.AddHandler(1, zone(0.0, 0.0))
		require.NoError(t, err)

		engine.Evaluate([]float64{1.4, -0.2})

		assert.ElementsMatch(t, []string{"start:" + top.ID, "start:" + bottom.ID}, sink.Calls())
		assert.Equal(t, 1.0, engine.Axes()[0].Value)
	})

	t.Run("short_snapshot_leaves_other_axes", func(t *testing.T) {
		engine, sink := newTestEngine(t, 2)
		_, err := engine.AddHandler(1, zone(0.0, 1.0))
		require.NoError(t, err)

		engine.Evaluate([]float64{0.5})
		engine.Evaluate(nil)
		assert.Empty(t, sink.Calls())
	})

	t.Run("default_handler_only_at_full_travel", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, nil)
		require.NoError(t, err)

		engine.Evaluate([]float64{0.99})
		assert.Empty(t, sink.Calls())

		engine.Evaluate([]float64{1.0})
		assert.Equal(t, []string{"start:" + h.ID}, sink.Calls())
	})
}

func TestEngineEvents(t *testing.T) {
	sink := &recordingSink{}
	events := &recordingEvents{}
	engine := NewEngine(sink, events)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }
	engine.Reset(2)

	h, err := engine.AddHandler(1, zone(0.5, 1.0))
	require.NoError(t, err)

	engine.Evaluate([]float64{0, 0.75})
	engine.Evaluate([]float64{0, 0.75})
	engine.Evaluate([]float64{0, 0.25})

	require.Len(t, events.events, 2)
	assert.Equal(t, Event{
		HandlerID: h.ID,
		Axis:      1,
		AxisName:  "Y",
		Value:     0.75,
		Active:    true,
		Timestamp: fixed,
	}, events.events[0])
	assert.False(t, events.events[1].Active)
	assert.Equal(t, 0.25, events.events[1].Value)
}

func TestEngineHandlers(t *testing.T) {
	t.Run("add_rejects_duplicates_and_bad_axis", func(t *testing.T) {
		engine, _ := newTestEngine(t, 2)
		h, err := engine.AddHandler(0, nil)
		require.NoError(t, err)

		_, err = engine.AddHandler(1, h)
		require.ErrorIs(t, err, ErrDuplicateHandler)

		_, err = engine.AddHandler(5, nil)
		require.ErrorIs(t, err, ErrUnknownAxis)
	})

	t.Run("add_normalizes_parameters", func(t *testing.T) {
		engine, _ := newTestEngine(t, 1)
		h := zone(0.8, 0.2)
		h.FrequencyHz = 5000
		h.IsTriggered = true

		added, err := engine.AddHandler(0, h)
		require.NoError(t, err)
		assert.LessOrEqual(t, added.MinThreshold, added.MaxThreshold)
		assert.Equal(t, handler.MaxFrequencyHz, added.FrequencyHz)
		assert.False(t, added.IsTriggered)
	})

	t.Run("delete_stops_active_tone_first", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, zone(0.0, 1.0))
		require.NoError(t, err)
		engine.Evaluate([]float64{0.5})

		require.NoError(t, engine.DeleteHandler(0, h.ID))
		assert.Equal(t, []string{"start:" + h.ID, "stop:" + h.ID}, sink.Calls())
		assert.Empty(t, engine.Axes()[0].Handlers)

		require.ErrorIs(t, engine.DeleteHandler(0, h.ID), ErrUnknownHandler)
	})

	t.Run("update_forwards_only_when_active", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, zone(0.5, 1.0))
		require.NoError(t, err)

		require.NoError(t, engine.UpdateHandler(0, h.ID, func(h *handler.Handler) { h.SetFrequency(880) }))
		assert.Empty(t, sink.Calls(), "inactive handler edits stay local")

		engine.Evaluate([]float64{0.7})
		require.NoError(t, engine.UpdateHandler(0, h.ID, func(h *handler.Handler) { h.SetVolume(0.9) }))

		assert.Equal(t, []string{"start:" + h.ID, "update:" + h.ID}, sink.Calls())
		require.Len(t, sink.updates, 1)
		assert.Equal(t, 880, sink.updates[0].FrequencyHz)
		assert.Equal(t, 0.9, sink.updates[0].Volume)
	})

	t.Run("update_cannot_forge_trigger_state", func(t *testing.T) {
		engine, _ := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, nil)
		require.NoError(t, err)

		require.NoError(t, engine.UpdateHandler(0, h.ID, func(h *handler.Handler) { h.IsTriggered = true }))
		got, ok := engine.Handler(h.ID)
		require.True(t, ok)
		assert.False(t, got.IsTriggered)
	})

	t.Run("update_cannot_change_id", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, zone(0.2, 0.8))
		require.NoError(t, err)
		id := h.ID
		engine.Evaluate([]float64{0.5})

		require.NoError(t, engine.UpdateHandler(0, id, func(h *handler.Handler) { h.ID = "renamed" }))
		_, ok := engine.Handler("renamed")
		assert.False(t, ok)
		_, ok = engine.Handler(id)
		assert.True(t, ok)

		require.ErrorIs(t, engine.DeleteHandler(0, "renamed"), ErrUnknownHandler)
		require.NoError(t, engine.DeleteHandler(0, id))
		assert.Equal(t, []string{"start:" + id, "update:" + id, "stop:" + id}, sink.Calls())
	})

	t.Run("update_window_rechecked_on_next_evaluate", func(t *testing.T) {
		engine, sink := newTestEngine(t, 1)
		h, err := engine.AddHandler(0, zone(0.0, 0.2))
		require.NoError(t, err)
		engine.Evaluate([]float64{0.5})
		assert.Empty(t, sink.Calls())

		require.NoError(t, engine.UpdateHandler(0, h.ID, func(h *handler.Handler) { h.SetMax(0.6) }))
		engine.Evaluate([]float64{0.5})
		assert.Equal(t, []string{"start:" + h.ID}, sink.Calls())
	})

	t.Run("update_unknown", func(t *testing.T) {
		engine, _ := newTestEngine(t, 1)
		err := engine.UpdateHandler(0, "nope", func(*handler.Handler) {})
		require.ErrorIs(t, err, ErrUnknownHandler)
		err = engine.UpdateHandler(3, "nope", func(*handler.Handler) {})
		require.ErrorIs(t, err, ErrUnknownAxis)
	})
}

func TestEngineStopAllAndReset(t *testing.T) {
	engine, sink := newTestEngine(t, 2)
	a, err := engine.AddHandler(0, zone(0.0, 1.0))
	require.NoError(t, err)
	b, err := engine.AddHandler(1, zone(0.0, 1.0))
	require.NoError(t, err)
	engine.Evaluate([]float64{0.5, 0.5})

	engine.StopAll()
	assert.Equal(t, 0, engine.TriggeredCount())
	assert.ElementsMatch(t, []string{"start:" + a.ID, "start:" + b.ID, "stop:" + a.ID, "stop:" + b.ID}, sink.Calls())

	engine.Evaluate([]float64{0.5, 0.5})
	engine.Reset(4)
	assert.Equal(t, 4, engine.AxisCount())
	assert.Len(t, sink.Calls(), 8, "reset should stop the tones of the old axes")
}

// TestEngineWithMixer drives a real mixer on the mock audio backend
func TestEngineWithMixer(t *testing.T) {
	backend := audio.NewMockAudioBackend()
	mixer := audio.NewMixer(backend, audio.DefaultMixerConfig())
	require.NoError(t, mixer.Reopen())
	defer func() { _ = mixer.Close() }() // Ignore errors during test cleanup

	engine := NewEngine(mixer, nil)
	engine.Reset(1)
	h, err := engine.AddHandler(0, zone(0.0, 1.0))
	require.NoError(t, err)

	engine.Evaluate([]float64{0.5})
	engine.Evaluate([]float64{0.5})
	assert.Equal(t, 1, mixer.ActiveCount())

	buf, err := backend.Pump(audio.DefaultBufferSize)
	require.NoError(t, err)
	assert.NotZero(t, buf[10], "triggered handler should be audible")

	require.NoError(t, engine.DeleteHandler(0, h.ID))
	assert.False(t, mixer.IsPlaying(h.ID))

	buf, err = backend.Pump(audio.DefaultBufferSize)
	require.NoError(t, err)
	for i, v := range buf {
		require.Equal(t, float32(0), v, "sample %d should be silent after delete", i)
	}
}

func TestEngineRenameCannotOrphanTone(t *testing.T) {
	backend := audio.NewMockAudioBackend()
	mixer := audio.NewMixer(backend, audio.DefaultMixerConfig())
	require.NoError(t, mixer.Reopen())
	defer func() { _ = mixer.Close() }() // Ignore errors during test cleanup

	engine := NewEngine(mixer, nil)
	engine.Reset(1)
	h, err := engine.AddHandler(0, zone(0.2, 0.8))
	require.NoError(t, err)
	id := h.ID

	engine.Evaluate([]float64{0.5})
	require.True(t, mixer.IsPlaying(id))

	require.NoError(t, engine.UpdateHandler(0, id, func(h *handler.Handler) { h.ID = "renamed" }))
	require.NoError(t, engine.DeleteHandler(0, id))
	assert.Equal(t, 0, mixer.ActiveCount())

	buf, err := backend.Pump(audio.DefaultBufferSize)
	require.NoError(t, err)
	assert.Zero(t, buf[10], "tone should stop with its handler")
}
