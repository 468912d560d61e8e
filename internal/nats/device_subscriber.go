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
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

// DeviceChangeMessage is the optional payload of a device change notification.
// Any message on the subject counts as a change, payload or not.
type DeviceChangeMessage struct {
	Source string `json:"source"` // e.g. "udev", "coreaudio", "operator"
	Reason string `json:"reason"`
}

// Notifier is raised when the device set may have changed
type Notifier interface {
	Notify()
}

// DeviceChangeSubscriber forwards device change notifications from NATS to a Notifier
type DeviceChangeSubscriber struct {
	natsConn   PedalNATSConnection
	instanceID string
	notifier   Notifier
}

// NewDeviceChangeSubscriber creates a subscriber that raises notifier
func NewDeviceChangeSubscriber(natsConn PedalNATSConnection, instanceID string, notifier Notifier) *DeviceChangeSubscriber {
	return &DeviceChangeSubscriber{
		natsConn:   natsConn,
		instanceID: instanceID,
		notifier:   notifier,
	}
}

// Start subscribes to the broadcast and per-instance device change subjects
func (s *DeviceChangeSubscriber) Start() error {
	instanceTopic := DeviceChangedSubject(s.instanceID)
	if _, err := s.natsConn.Subscribe(instanceTopic, s.handleDeviceChange); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", instanceTopic, err)
	}

	if _, err := s.natsConn.Subscribe(broadcastDeviceTopic, s.handleDeviceChange); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", broadcastDeviceTopic, err)
	}

	log.Printf("🎧 Subscribed to device change topics: %s, %s", instanceTopic, broadcastDeviceTopic)
	return nil
}

func (s *DeviceChangeSubscriber) handleDeviceChange(msg *nats.Msg) {
	var change DeviceChangeMessage
	if len(msg.Data) > 0 && json.Unmarshal(msg.Data, &change) == nil && change.Source != "" {
		log.Printf("📥 Device change notification on %s from %s: %s", msg.Subject, change.Source, change.Reason)
	} else {
		log.Printf("📥 Device change notification on %s", msg.Subject)
	}
	s.notifier.Notify()
}
