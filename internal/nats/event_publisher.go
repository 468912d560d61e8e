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
	"log"
	"sync/atomic"

	"github.com/loqalabs/pedal-assist/internal/trigger"
)

// EventPublisher publishes trigger edges as JSON so other services can follow the pedals
type EventPublisher struct {
	natsConn PedalNATSConnection
	subject  string

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewEventPublisher creates a publisher for instanceID's trigger subject
func NewEventPublisher(natsConn PedalNATSConnection, instanceID string) *EventPublisher {
	return &EventPublisher{
		natsConn: natsConn,
		subject:  TriggerSubject(instanceID),
	}
}

// PublishTrigger implements trigger.EventSink. Failures are logged and dropped.
func (p *EventPublisher) PublishTrigger(event trigger.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.failed.Add(1)
		log.Printf("❌ Failed to marshal trigger event: %v", err)
		return
	}

	if err := p.natsConn.Publish(p.subject, data); err != nil {
		p.failed.Add(1)
		log.Printf("⚠️  Failed to publish trigger event for %s: %v", event.HandlerID, err)
		return
	}
	p.published.Add(1)
}

// Subject returns the subject events are published on
func (p *EventPublisher) Subject() string {
	return p.subject
}

// Counts returns how many events were published and how many failed
func (p *EventPublisher) Counts() (published, failed uint64) {
	return p.published.Load(), p.failed.Load()
}
