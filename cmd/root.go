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

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loqalabs/pedal-assist/internal/config"
)

var (
	configFile string
	zonesFile  string
	settings   = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "pedal-assist",
	Short: "Audible alerts for pedal and joystick positions",
	Long: `Pedal assist samples the axes of a game controller and plays a tone
while an axis sits inside one of its alert zones.

Settings come from flags, PEDAL_* environment variables and an optional
pedal-assist.yaml in the working directory or the user config directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: search ./pedal-assist.yaml and the user config dir)")
	rootCmd.PersistentFlags().StringVar(&zonesFile, "zones", "", "YAML file of alert zones added to the configured ones")
	addSettingFlags(rootCmd.PersistentFlags())
	if err := bindSettingFlags(settings, rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

// settingFlags maps flag names to config keys
var settingFlags = map[string]string{
	"backend":  "output_backend",
	"wav":      "wav_path",
	"device":   "device_index",
	"nats":     "nats_url",
	"instance": "instance_id",
}

func addSettingFlags(flags *pflag.FlagSet) {
	flags.String("backend", config.BackendPortAudio, "audio output: portaudio, oto, beep, wav or mock")
	flags.String("wav", "", "output file for the wav backend")
	flags.Int("device", 0, "input device index")
	flags.String("nats", "", "NATS server URL (empty disables NATS)")
	flags.String("instance", "", "instance id used in NATS subjects")
}

func bindSettingFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range settingFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// loadConfig resolves the configuration and appends zones from zonesPath
func loadConfig(v *viper.Viper, configPath, zonesPath string) (config.Config, error) {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return config.Config{}, err
	}

	if zonesPath != "" {
		zones, err := config.LoadZonesFile(zonesPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Zones = append(cfg.Zones, zones...)
		if err := cfg.Validate(); err != nil {
			return config.Config{}, fmt.Errorf("zones file %s: %w", zonesPath, err)
		}
	}
	return cfg, nil
}
