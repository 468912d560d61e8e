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
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/pedal-assist/internal/trigger"
	"github.com/nats-io/nats.go"
)

// MockPedalNATSConnection records subscriptions and publishes for testing
type MockPedalNATSConnection struct {
	mu           sync.RWMutex
	subscribers  map[string][]nats.MsgHandler
	published    []*nats.Msg
	connected    bool
	errors       map[string]error
	publishError error
}

func NewMockPedalNATSConnection() *MockPedalNATSConnection {
	return &MockPedalNATSConnection{
		subscribers: make(map[string][]nats.MsgHandler),
		connected:   true,
		errors:      make(map[string]error),
	}
}

func (m *MockPedalNATSConnection) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, nats.ErrConnectionClosed
	}

	if err, exists := m.errors[subject]; exists {
		return nil, err
	}

	m.subscribers[subject] = append(m.subscribers[subject], handler)
	return &nats.Subscription{}, nil
}

func (m *MockPedalNATSConnection) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nats.ErrConnectionClosed
	}
	if m.publishError != nil {
		return m.publishError
	}

	m.published = append(m.published, &nats.Msg{Subject: subject, Data: data})
	return nil
}

// Deliver hands a message to every handler subscribed to subject
func (m *MockPedalNATSConnection) Deliver(subject string, data []byte) {
	m.mu.RLock()
	handlers := m.subscribers[subject]
	m.mu.RUnlock()

	msg := &nats.Msg{Subject: subject, Data: data}
	for _, handler := range handlers {
		go handler(msg)
	}
}

func (m *MockPedalNATSConnection) Published() []*nats.Msg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*nats.Msg(nil), m.published...)
}

func (m *MockPedalNATSConnection) SetError(subject string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[subject] = err
}

func (m *MockPedalNATSConnection) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

func (m *MockPedalNATSConnection) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

type countingNotifier struct {
	count atomic.Int32
}

func (c *countingNotifier) Notify() { c.count.Add(1) }

func waitForCount(t *testing.T, n *countingNotifier, want int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n.count.Load() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Notifier count: got %d, want %d", n.count.Load(), want)
}

func TestSubjects(t *testing.T) {
	if got := DeviceChangedSubject("desk-1"); got != "pedal.desk-1.devices.changed" {
		t.Errorf("DeviceChangedSubject mismatch: got %s", got)
	}
	if got := TriggerSubject("desk-1"); got != "pedal.desk-1.trigger" {
		t.Errorf("TriggerSubject mismatch: got %s", got)
	}
}

func TestDeviceChangeSubscriber_Start(t *testing.T) {
	mockConn := NewMockPedalNATSConnection()
	notifier := &countingNotifier{}
	subscriber := NewDeviceChangeSubscriber(mockConn, "desk-1", notifier)

	if err := subscriber.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for _, subject := range []string{"pedal.desk-1.devices.changed", "pedal.devices.changed"} {
		if len(mockConn.subscribers[subject]) != 1 {
			t.Errorf("Expected one subscription on %s, got %d", subject, len(mockConn.subscribers[subject]))
		}
	}
}

func TestDeviceChangeSubscriber_StartErrors(t *testing.T) {
	tests := []struct {
		name    string
		subject string
	}{
		{name: "instance_subject_fails", subject: "pedal.desk-1.devices.changed"},
		{name: "broadcast_subject_fails", subject: "pedal.devices.changed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockConn := NewMockPedalNATSConnection()
			mockConn.SetError(tt.subject, errors.New("permission denied"))
			subscriber := NewDeviceChangeSubscriber(mockConn, "desk-1", &countingNotifier{})

			err := subscriber.Start()
			if err == nil {
				t.Fatal("Expected Start to fail")
			}
			if !strings.Contains(err.Error(), tt.subject) {
				t.Errorf("Error should name the subject, got: %v", err)
			}
		})
	}
}

func TestDeviceChangeSubscriber_Notifies(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		payload []byte
	}{
		{name: "empty_payload", subject: "pedal.devices.changed"},
		{name: "structured_payload", subject: "pedal.desk-1.devices.changed", payload: []byte(`{"source":"udev","reason":"usb add"}`)},
		{name: "garbage_payload", subject: "pedal.devices.changed", payload: []byte("not-json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockConn := NewMockPedalNATSConnection()
			notifier := &countingNotifier{}
			subscriber := NewDeviceChangeSubscriber(mockConn, "desk-1", notifier)
			if err := subscriber.Start(); err != nil {
				t.Fatalf("Start failed: %v", err)
			}

			mockConn.Deliver(tt.subject, tt.payload)
			waitForCount(t, notifier, 1)
		})
	}
}

func TestDeviceChangeSubscriber_IgnoresOtherInstances(t *testing.T) {
	mockConn := NewMockPedalNATSConnection()
	notifier := &countingNotifier{}
	subscriber := NewDeviceChangeSubscriber(mockConn, "desk-1", notifier)
	if err := subscriber.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	mockConn.Deliver("pedal.desk-2.devices.changed", nil)
	time.Sleep(20 * time.Millisecond)

	if got := notifier.count.Load(); got != 0 {
		t.Errorf("Notifier should not fire for another instance, got %d", got)
	}
}

func TestEventPublisher_PublishTrigger(t *testing.T) {
	mockConn := NewMockPedalNATSConnection()
	publisher := NewEventPublisher(mockConn, "desk-1")

	event := trigger.Event{
		HandlerID: "a1b2c3d4",
		Axis:      1,
		AxisName:  "Y",
		Value:     0.75,
		Active:    true,
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	publisher.PublishTrigger(event)

	published := mockConn.Published()
	if len(published) != 1 {
		t.Fatalf("Expected 1 published message, got %d", len(published))
	}
	if published[0].Subject != "pedal.desk-1.trigger" {
		t.Errorf("Subject mismatch: got %s", published[0].Subject)
	}

	var payload map[string]any
	if err := json.Unmarshal(published[0].Data, &payload); err != nil {
		t.Fatalf("Published payload is not JSON: %v", err)
	}
	expected := map[string]any{
		"handler_id": "a1b2c3d4",
		"axis":       float64(1),
		"axis_name":  "Y",
		"value":      0.75,
		"active":     true,
		"timestamp":  "2025-03-01T12:00:00Z",
	}
	for key, want := range expected {
		if payload[key] != want {
			t.Errorf("Payload field %s mismatch: got %v, want %v", key, payload[key], want)
		}
	}

	if sent, failed := publisher.Counts(); sent != 1 || failed != 0 {
		t.Errorf("Counts mismatch: got %d/%d, want 1/0", sent, failed)
	}
}

func TestEventPublisher_PublishErrorsAreNotFatal(t *testing.T) {
	mockConn := NewMockPedalNATSConnection()
	mockConn.SetPublishError(nats.ErrConnectionClosed)
	publisher := NewEventPublisher(mockConn, "desk-1")

	publisher.PublishTrigger(trigger.Event{HandlerID: "a1b2c3d4"})
	publisher.PublishTrigger(trigger.Event{HandlerID: "a1b2c3d4"})

	if sent, failed := publisher.Counts(); sent != 0 || failed != 2 {
		t.Errorf("Counts mismatch: got %d/%d, want 0/2", sent, failed)
	}
}

func TestConnect_GivesUpAfterRetries(t *testing.T) {
	originalAttempts, originalDelay := connectAttempts, connectRetryDelay
	connectAttempts, connectRetryDelay = 3, time.Millisecond
	defer func() { connectAttempts, connectRetryDelay = originalAttempts, originalDelay }()

	// Nothing listens on port 1
	conn, err := Connect("nats://127.0.0.1:1", "pedal-assist-test")
	if err == nil {
		conn.Close()
		t.Fatal("Expected Connect to fail")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Error should report the attempt count, got: %v", err)
	}
}
