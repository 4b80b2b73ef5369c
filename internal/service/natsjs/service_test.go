// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package natsjs

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
)

type fakeMsg struct {
	jetstream.Msg
	delivered uint64
	nak       int
	term      string
}

func (m *fakeMsg) Subject() string { return "tasks.horse.runLap" }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: m.delivered}, nil
}

func (m *fakeMsg) Nak() error {
	m.nak++
	return nil
}

func (m *fakeMsg) TermWithReason(reason string) error {
	m.term = reason
	return nil
}

func TestFinalDelivery(t *testing.T) {
	assert.False(t, finalDelivery(1, 3))
	assert.False(t, finalDelivery(2, 3))
	assert.True(t, finalDelivery(3, 3))
	assert.True(t, finalDelivery(4, 3))
	assert.False(t, finalDelivery(100, 0), "unbounded consumers always redeliver")
}

func TestService_RejectNaksBeforeLastDelivery(t *testing.T) {
	var logs bytes.Buffer
	s := &Service{logger: slog.New(slog.NewTextHandler(&logs, nil)), maxDeliveries: 3}

	msg := &fakeMsg{delivered: 2}
	s.reject(msg, errors.New("handler down"))

	assert.Equal(t, 1, msg.nak)
	assert.Empty(t, msg.term)
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestService_RejectTerminatesLastDelivery(t *testing.T) {
	var logs bytes.Buffer
	s := &Service{logger: slog.New(slog.NewTextHandler(&logs, nil)), maxDeliveries: 3}

	msg := &fakeMsg{delivered: 3}
	s.reject(msg, errors.New("handler down"))

	assert.Zero(t, msg.nak)
	assert.Equal(t, "max deliveries reached: handler down", msg.term)
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "deliveries=3")
}
