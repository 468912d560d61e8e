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

package nats

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Connection retry policy
var (
	connectAttempts   = 5
	connectRetryDelay = 2 * time.Second
)

// PedalNATSConnection interface for dependency injection
type PedalNATSConnection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// PedalNATSConnectionAdapter adapts *nats.Conn to PedalNATSConnection interface
type PedalNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewPedalNATSConnectionAdapter(conn *nats.Conn) *PedalNATSConnectionAdapter {
	return &PedalNATSConnectionAdapter{conn: conn}
}

func (a *PedalNATSConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *PedalNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *PedalNATSConnectionAdapter) Close() {
	a.conn.Close()
	log.Println("🔌 NATS connection closed")
}

// Connect dials the NATS server, retrying a few times before giving up
func Connect(natsURL, clientName string) (*PedalNATSConnectionAdapter, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(natsURL, nats.Name(clientName))
		if err == nil {
			break
		}
		log.Printf("⚠️  Failed to connect to NATS (attempt %d/%d): %v", i+1, connectAttempts, err)
		if i < connectAttempts-1 {
			time.Sleep(connectRetryDelay)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	log.Printf("✅ Connected to NATS at %s", natsURL)
	return NewPedalNATSConnectionAdapter(nc), nil
}

// Subject helpers
const (
	subjectPrefix        = "pedal"
	broadcastDeviceTopic = "pedal.devices.changed"
)

// DeviceChangedSubject is the per-instance device change subject
func DeviceChangedSubject(instanceID string) string {
	return fmt.Sprintf("%s.%s.devices.changed", subjectPrefix, instanceID)
}

// TriggerSubject is the subject trigger edges are published on
func TriggerSubject(instanceID string) string {
	return fmt.Sprintf("%s.%s.trigger", subjectPrefix, instanceID)
}
