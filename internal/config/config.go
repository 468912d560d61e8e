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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/loqalabs/pedal-assist/internal/handler"
)

// Output backend names
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
	BackendBeep      = "beep"
	BackendWAV       = "wav"
	BackendMock      = "mock"
)

// EnvPrefix is prepended to every environment override, e.g. PEDAL_SAMPLE_RATE
const EnvPrefix = "PEDAL"

// ConfigName is the base name searched for when no config file is given
const ConfigName = "pedal-assist"

// Config is the runtime configuration. It is only ever read; nothing writes it back.
type Config struct {
	SampleRate          int           `mapstructure:"sample_rate"`
	BufferSize          int           `mapstructure:"buffer_size"`
	OutputBackend       string        `mapstructure:"output_backend"`
	WAVPath             string        `mapstructure:"wav_path"`
	DeviceIndex         int           `mapstructure:"device_index"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	DeviceCheckInterval time.Duration `mapstructure:"device_check_interval"`
	ReopenDebounce      time.Duration `mapstructure:"reopen_debounce"`
	WatchInterval       time.Duration `mapstructure:"watch_interval"`
	NATSURL             string        `mapstructure:"nats_url"`
	InstanceID          string        `mapstructure:"instance_id"`
	Zones               []ZoneConfig  `mapstructure:"zones"`
}

// ZoneConfig seeds one handler at startup. Thresholds and volume are
// fractions in [0, 1]; out of range values are clamped, not rejected.
type ZoneConfig struct {
	Axis      int      `mapstructure:"axis" yaml:"axis"`
	Min       float64  `mapstructure:"min" yaml:"min"`
	Max       float64  `mapstructure:"max" yaml:"max"`
	Frequency int      `mapstructure:"frequency" yaml:"frequency,omitempty"`
	Volume    *float64 `mapstructure:"volume" yaml:"volume,omitempty"`
	Waveform  string   `mapstructure:"waveform" yaml:"waveform,omitempty"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sample_rate", 44100)
	v.SetDefault("buffer_size", 512)
	v.SetDefault("output_backend", BackendPortAudio)
	v.SetDefault("wav_path", "pedal-assist.wav")
	v.SetDefault("device_index", 0)
	v.SetDefault("poll_interval", time.Millisecond)
	v.SetDefault("tick_interval", 33*time.Millisecond)
	v.SetDefault("device_check_interval", time.Second)
	v.SetDefault("reopen_debounce", time.Second)
	v.SetDefault("watch_interval", time.Second)
	v.SetDefault("nats_url", "")
	v.SetDefault("instance_id", "pedal-assist-001")
	v.SetDefault("zones", []ZoneConfig{})
}

// New returns a viper instance with defaults and PEDAL_ environment overrides
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (or searches the working directory and the user
// config directory when it is empty) and decodes the result. A missing
// searched-for file is not an error; a missing explicit file is.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, ConfigName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the audio and input layers cannot run with
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}

	switch c.OutputBackend {
	case BackendPortAudio, BackendOto, BackendBeep, BackendMock:
	case BackendWAV:
		if c.WAVPath == "" {
			return fmt.Errorf("output_backend %q requires wav_path", BackendWAV)
		}
	default:
		return fmt.Errorf("unknown output_backend %q", c.OutputBackend)
	}

	intervals := map[string]time.Duration{
		"poll_interval":         c.PollInterval,
		"tick_interval":         c.TickInterval,
		"device_check_interval": c.DeviceCheckInterval,
		"watch_interval":        c.WatchInterval,
	}
	for key, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", key, d)
		}
	}
	if c.ReopenDebounce < 0 {
		return fmt.Errorf("reopen_debounce must not be negative, got %v", c.ReopenDebounce)
	}
	if c.InstanceID == "" {
		return fmt.Errorf("instance_id must not be empty")
	}

	for i, z := range c.Zones {
		if z.Axis < 0 {
			return fmt.Errorf("zone %d: axis must not be negative, got %d", i, z.Axis)
		}
	}
	return nil
}

type zonesDocument struct {
	Zones []ZoneConfig `yaml:"zones"`
}

// LoadZonesFile reads zone presets from a YAML file holding either a bare
// list of zones or a document with a top level "zones" key
func LoadZonesFile(path string) ([]ZoneConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading zones file: %w", err)
	}

	var zones []ZoneConfig
	if err := yaml.Unmarshal(data, &zones); err == nil {
		return zones, nil
	}

	var doc zonesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing zones file %s: %w", path, err)
	}
	return doc.Zones, nil
}

// Handler builds a handler for the zone. Values go through the same clamp
// rules as interactive edits; an unknown waveform keeps the default sine.
func (z ZoneConfig) Handler() *handler.Handler {
	h := handler.New()
	h.SetMin(z.Min)
	h.SetMax(z.Max)
	if z.Frequency != 0 {
		h.SetFrequency(z.Frequency)
	}
	if z.Volume != nil {
		h.SetVolume(*z.Volume)
	}
	if z.Waveform != "" {
		h.SetWaveform(z.Waveform)
	}
	return h
}
