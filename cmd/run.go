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
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loqalabs/pedal-assist/internal/app"
	"github.com/loqalabs/pedal-assist/internal/config"
	pedalnats "github.com/loqalabs/pedal-assist/internal/nats"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample the input device and sound alerts",
	Long: `Opens audio output and the configured input device, then plays each
zone's tone while its axis is inside the zone. Runs until interrupted.

Keys: r reopen audio, d rescan input devices, n/p next/previous device,
s status, q or Esc quit.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(settings, configFile, zonesFile)
	if err != nil {
		return err
	}

	output, err := newOutputBackend(cfg)
	if err != nil {
		return err
	}

	opts := app.Options{
		Config: cfg,
		Output: output,
		Input:  newInputBackend(),
	}
	if cfg.NATSURL != "" {
		conn, err := pedalnats.Connect(cfg.NATSURL, "pedal-assist-"+cfg.InstanceID)
		if err != nil {
			log.Printf("⚠️  Continuing without NATS: %v", err)
		} else {
			opts.NATS = conn
		}
	}

	a, err := app.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("🚀 Starting Pedal Assist")
	log.Printf("📋 Instance ID: %s", cfg.InstanceID)
	log.Printf("🎧 Output backend: %s", cfg.OutputBackend)
	printBanner(cfg)

	listenKeys(ctx, a, stop)

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("pedal assist stopped: %w", err)
	}
	return nil
}

func printBanner(cfg config.Config) {
	fmt.Println()
	fmt.Println("🎮 Pedal Assist - Listening for axis positions")
	fmt.Println("==============================================")
	fmt.Println()
	fmt.Printf("🔔 Zones: %d configured\n", len(cfg.Zones))
	fmt.Println("⌨️  r reopen audio | d rescan devices | n/p switch device | s status")
	fmt.Println("⏹️  Press q, Esc or Ctrl+C to stop")
	fmt.Println()
}
