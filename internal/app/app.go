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

package app

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/loqalabs/pedal-assist/internal/audio"
	"github.com/loqalabs/pedal-assist/internal/config"
	"github.com/loqalabs/pedal-assist/internal/devicewatch"
	"github.com/loqalabs/pedal-assist/internal/input"
	pedalnats "github.com/loqalabs/pedal-assist/internal/nats"
	"github.com/loqalabs/pedal-assist/internal/trigger"
)

// Options wires the app to its backends. NATS may be nil to run without it.
type Options struct {
	Config config.Config
	Output audio.AudioBackend
	Input  input.InputBackend
	NATS   pedalnats.PedalNATSConnection
}

// Status is a point-in-time summary for display
type Status struct {
	Device      string
	DeviceIndex int
	Axes        int
	Handlers    int
	Triggered   int
	Output      string
	StreamOpen  bool
	Mixer       audio.MixerStats
}

// App runs the control loop: it samples the input device, evaluates the
// alert zones, drives the mixer and reacts to device changes
type App struct {
	cfg config.Config

	mixer   *audio.Mixer
	sampler *input.Sampler
	engine  *trigger.Engine

	signal    *devicewatch.Signal
	debouncer *devicewatch.Debouncer
	watcher   *devicewatch.Watcher

	natsConn   pedalnats.PedalNATSConnection
	publisher  *pedalnats.EventPublisher
	subscriber *pedalnats.DeviceChangeSubscriber

	mu            sync.Mutex
	devices       []input.DeviceInfo
	selectedName  string
	lastTriggered int
	started       bool
	closed        bool
}

// New assembles the app. Nothing is opened until Start.
func New(opts Options) (*App, error) {
	if opts.Output == nil || opts.Input == nil {
		return nil, fmt.Errorf("app requires both an output and an input backend")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := opts.Config
	a := &App{
		cfg:      cfg,
		signal:   &devicewatch.Signal{},
		natsConn: opts.NATS,
	}

	a.mixer = audio.NewMixer(opts.Output, audio.MixerConfig{
		SampleRate:          float64(cfg.SampleRate),
		BufferSize:          cfg.BufferSize,
		DeviceCheckInterval: cfg.DeviceCheckInterval,
	})
	a.sampler = input.NewSampler(opts.Input, input.SamplerConfig{PollInterval: cfg.PollInterval})
	a.debouncer = devicewatch.NewDebouncer(a.signal, cfg.ReopenDebounce)
	a.watcher = devicewatch.NewWatcher(a.signal, cfg.WatchInterval)

	var events trigger.EventSink
	if opts.NATS != nil {
		a.publisher = pedalnats.NewEventPublisher(opts.NATS, cfg.InstanceID)
		a.subscriber = pedalnats.NewDeviceChangeSubscriber(opts.NATS, cfg.InstanceID, a.signal)
		events = a.publisher
	}
	a.engine = trigger.NewEngine(a.mixer, events)

	return a, nil
}

// Engine exposes the trigger engine for handler edits
func (a *App) Engine() *trigger.Engine {
	return a.engine
}

// Mixer exposes the mixer
func (a *App) Mixer() *audio.Mixer {
	return a.mixer
}

// Signal is raised by anything that learns the device set changed
func (a *App) Signal() *devicewatch.Signal {
	return a.signal
}

// Start opens audio output, selects the configured input device, seeds the
// configured zones and starts the device watchers. Hardware problems are
// logged and leave the app running without sound or input.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}
	a.started = true

	if err := a.mixer.Reopen(); err != nil {
		log.Printf("⚠️  Starting without audio output: %v", err)
	}
	a.debouncer.Mark(time.Now())

	a.rescanLocked(a.cfg.DeviceIndex)

	if a.subscriber != nil {
		if err := a.subscriber.Start(); err != nil {
			return fmt.Errorf("failed to start device change subscriber: %w", err)
		}
	}

	a.watcher.AddProbe("input devices", a.inputFingerprint)
	a.watcher.Start(ctx)

	log.Printf("✅ Pedal assist ready")
	return nil
}

// inputFingerprint summarises the attached input devices for the watcher
func (a *App) inputFingerprint() (string, error) {
	devices, err := a.sampler.Devices()
	if err != nil {
		return "", err
	}
	fingerprint := strconv.Itoa(len(devices))
	for _, d := range devices {
		fingerprint += "|" + d.Name
	}
	return fingerprint, nil
}

// Run starts the app and ticks the control loop until ctx is done, then closes it
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		_ = a.Close() // Start error takes precedence
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("⚠️  Shutdown error: %v", err)
		}
	}()

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			a.Tick(now)
		}
	}
}

// Tick runs one control loop iteration
func (a *App) Tick(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	if a.debouncer.Ready(now) {
		a.handleDeviceChangeLocked()
	}

	if a.mixer.CheckDeviceChange(now) {
		a.debouncer.Mark(now)
	}

	a.engine.Evaluate(a.sampler.Snapshot())

	if triggered := a.engine.TriggeredCount(); triggered != a.lastTriggered {
		a.lastTriggered = triggered
		if triggered == 0 {
			log.Printf("🎮 Ready")
		} else {
			log.Printf("🔊 %d handler(s) triggered", triggered)
		}
	}
}

// handleDeviceChangeLocked reopens audio output and re-selects the input
// device if the one in use went away
func (a *App) handleDeviceChangeLocked() {
	log.Printf("🔌 Device change, reopening audio output")
	if err := a.mixer.Reopen(); err != nil {
		log.Printf("⚠️  Audio reopen failed: %v", err)
	}

	devices, err := a.sampler.Devices()
	if err != nil {
		log.Printf("⚠️  Could not list input devices: %v", err)
		return
	}

	selected := a.sampler.Selected()
	if selected >= 0 && selected < len(devices) && devices[selected].Name == a.selectedName {
		a.devices = devices
		return
	}

	preferred := a.cfg.DeviceIndex
	if selected >= 0 {
		log.Printf("⚠️  Input device %q went away, rescanning", a.selectedName)
		preferred = selected
	}
	a.rescanLocked(preferred)
}

// RequestReopen reopens audio output immediately
func (a *App) RequestReopen() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.debouncer.Mark(time.Now())
	return a.mixer.Reopen()
}

// Rescan enumerates input devices again and re-selects the current or configured one
func (a *App) Rescan() []input.DeviceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	preferred := a.sampler.Selected()
	if preferred < 0 {
		preferred = a.cfg.DeviceIndex
	}
	a.rescanLocked(preferred)
	return append([]input.DeviceInfo(nil), a.devices...)
}

func (a *App) rescanLocked(preferred int) {
	a.devices = a.sampler.Enumerate()
	if len(a.devices) == 0 {
		log.Printf("⚠️  No input devices found")
		a.clearSelectionLocked()
		return
	}

	index := preferred
	if index < 0 || index >= len(a.devices) {
		index = 0
	}
	if err := a.selectLocked(index); err != nil {
		log.Printf("❌ %v", err)
	}
}

// SelectDevice switches to the input device at index
func (a *App) SelectDevice(index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectLocked(index)
}

// NextDevice switches to the following input device, wrapping around
func (a *App) NextDevice() error {
	return a.stepDevice(1)
}

// PrevDevice switches to the preceding input device, wrapping around
func (a *App) PrevDevice() error {
	return a.stepDevice(-1)
}

func (a *App) stepDevice(step int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.devices) == 0 {
		return fmt.Errorf("no input devices: %w", input.ErrDeviceUnavailable)
	}
	current := max(a.sampler.Selected(), 0)
	next := (current + step + len(a.devices)) % len(a.devices)
	return a.selectLocked(next)
}

func (a *App) selectLocked(index int) error {
	axes, err := a.sampler.Select(index)
	if err != nil {
		a.clearSelectionLocked()
		return err
	}

	a.selectedName = ""
	for _, d := range a.devices {
		if d.Index == index {
			a.selectedName = d.Name
		}
	}

	a.engine.Reset(axes)
	a.seedZonesLocked(axes)
	return nil
}

func (a *App) clearSelectionLocked() {
	a.sampler.Clear()
	a.selectedName = ""
	a.engine.Reset(0)
}

func (a *App) seedZonesLocked(axes int) {
	for i, zone := range a.cfg.Zones {
		if zone.Axis >= axes {
			log.Printf("⚠️  Zone %d targets axis %d but the device has %d axes, skipping", i, zone.Axis, axes)
			continue
		}
		if _, err := a.engine.AddHandler(zone.Axis, zone.Handler()); err != nil {
			log.Printf("⚠️  Zone %d not added: %v", i, err)
		}
	}
}

// Status summarises the current state
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	handlers := 0
	for _, axis := range a.engine.Axes() {
		handlers += len(axis.Handlers)
	}

	return Status{
		Device:      a.selectedName,
		DeviceIndex: a.sampler.Selected(),
		Axes:        a.sampler.AxisCount(),
		Handlers:    handlers,
		Triggered:   a.engine.TriggeredCount(),
		Output:      a.mixer.Device(),
		StreamOpen:  a.mixer.StreamOpen(),
		Mixer:       a.mixer.Stats(),
	}
}

// Close silences every tone and releases input, output and NATS
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	a.engine.StopAll()
	a.watcher.Stop()

	var firstErr error
	if err := a.sampler.Close(); err != nil {
		firstErr = err
	}
	if err := a.mixer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.natsConn != nil {
		a.natsConn.Close()
	}

	log.Printf("👋 Pedal assist stopped")
	return firstErr
}
