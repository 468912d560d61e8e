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
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loqalabs/pedal-assist/internal/audio"
	"github.com/loqalabs/pedal-assist/internal/input"
)

var devicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices and the default audio output",
	Long: `Lists the attached game controllers with the index to pass to --device,
and the default output device of the configured audio backend.`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(settings, configFile, zonesFile)
	if err != nil {
		return err
	}

	output, err := newOutputBackend(cfg)
	if err != nil {
		return err
	}
	return listDevices(cmd.OutOrStdout(), newInputBackend(), output, devicesJSON)
}

type deviceListing struct {
	Inputs      []input.DeviceInfo `json:"inputs"`
	InputError  string             `json:"input_error,omitempty"`
	Output      string             `json:"output"`
	OutputError string             `json:"output_error,omitempty"`
}

// listDevices reports on both backends. A failing backend is reported in
// the listing rather than returned, so the other one is still shown.
func listDevices(w io.Writer, in input.InputBackend, out audio.AudioBackend, asJSON bool) error {
	var listing deviceListing

	if err := in.Init(); err != nil {
		listing.InputError = err.Error()
	} else {
		devices, err := in.Devices()
		if err != nil {
			listing.InputError = err.Error()
		}
		listing.Inputs = devices
		_ = in.Quit() // Listing is done
	}

	if err := out.Initialize(); err != nil {
		listing.OutputError = err.Error()
	} else {
		device, err := out.DefaultOutputDevice()
		if err != nil {
			listing.OutputError = err.Error()
		}
		listing.Output = device
		_ = out.Terminate() // Listing is done
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	}

	fmt.Fprintln(w, "Input devices:")
	switch {
	case listing.InputError != "":
		fmt.Fprintf(w, "  unavailable: %s\n", listing.InputError)
	case len(listing.Inputs) == 0:
		fmt.Fprintln(w, "  none attached")
	default:
		for _, d := range listing.Inputs {
			fmt.Fprintf(w, "  [%d] %s\n", d.Index, d.Name)
		}
	}

	fmt.Fprintln(w, "Audio output:")
	if listing.OutputError != "" {
		fmt.Fprintf(w, "  unavailable: %s\n", listing.OutputError)
	} else {
		fmt.Fprintf(w, "  %s\n", listing.Output)
	}
	return nil
}
