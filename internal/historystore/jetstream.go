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

package historystore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/DeluxeOwl/chronicle/event"
	"github.com/DeluxeOwl/chronicle/version"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"

	jetstreamx "github.com/ngnhng/replayflow/internal/infra/jetstream"
)

// headerVersion carries the version of the last event in an append.
const headerVersion = "Replayflow-History-Version"

var ErrUnsupportedCheck = errors.New("history log only supports exact version checks")

var _ event.Log = (*jetStreamLog)(nil)

// jetStreamLog keeps each run's history on its own subject of one shared
// stream. An append is a single message holding all of its events, so a save
// lands whole or not at all. The expected version is enforced by JetStream's
// last-sequence-per-subject check.
type jetStreamLog struct {
	conn   *jetstreamx.Connection
	stream string
	prefix string

	mu    sync.Mutex
	ready bool
}

type appended struct {
	Name string `msgpack:"n"`
	Data []byte `msgpack:"d"`
}

func newJetStreamLog(conn *jetstreamx.Connection, stream, prefix string) *jetStreamLog {
	return &jetStreamLog{conn: conn, stream: stream, prefix: prefix}
}

var subjectToken = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

func (l *jetStreamLog) subject(id event.LogID) string {
	return l.prefix + "." + subjectToken.Replace(string(id))
}

func (l *jetStreamLog) provision(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return nil
	}
	_, err := l.conn.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     l.stream,
		Subjects: []string{l.prefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return err
	}
	l.ready = true
	return nil
}

// head returns the version and stream sequence of the last append on
// subject. A subject, or stream, with no appends yields zeros.
func (l *jetStreamLog) head(ctx context.Context, subject string) (version.Version, uint64, error) {
	stream, err := l.conn.JetStream().Stream(ctx, l.stream)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return version.Zero, 0, nil
	}
	if err != nil {
		return version.Zero, 0, fmt.Errorf("history stream %s: %w", l.stream, err)
	}
	msg, err := stream.GetLastMsgForSubject(ctx, subject)
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return version.Zero, 0, nil
	}
	if err != nil {
		return version.Zero, 0, fmt.Errorf("last history entry of %s: %w", subject, err)
	}
	v, err := parseVersion(msg.Header)
	if err != nil {
		return version.Zero, 0, err
	}
	return v, msg.Sequence, nil
}

func (l *jetStreamLog) AppendEvents(ctx context.Context, id event.LogID, expected version.Check, events event.RawEvents) (version.Version, error) {
	exact, ok := expected.(version.CheckExact)
	if !ok {
		return version.Zero, ErrUnsupportedCheck
	}
	want := version.Version(exact)
	if len(events) == 0 {
		return want, nil
	}
	if err := l.provision(ctx); err != nil {
		return version.Zero, err
	}

	subject := l.subject(id)
	current, seq, err := l.head(ctx, subject)
	if err != nil {
		return version.Zero, err
	}
	if current != want {
		return version.Zero, version.NewConflictError(want, current)
	}

	batch := make([]appended, len(events))
	for i, raw := range events {
		batch[i] = appended{Name: raw.EventName(), Data: raw.Data()}
	}
	data, err := msgpack.Marshal(batch)
	if err != nil {
		return version.Zero, fmt.Errorf("encode history append: %w", err)
	}

	next := current + version.Version(len(events))
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	msg.Header.Set(headerVersion, strconv.FormatUint(uint64(next), 10))

	_, err = l.conn.PublishMsg(ctx, msg, jetstream.WithExpectLastSequencePerSubject(seq))
	var apiErr *jetstream.APIError
	switch {
	case err == nil:
		return next, nil
	case errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence:
		actual, _, herr := l.head(ctx, subject)
		if herr != nil {
			actual = current + 1
		}
		return version.Zero, version.NewConflictError(want, actual)
	default:
		return version.Zero, fmt.Errorf("append history of %s: %w", id, err)
	}
}

func (l *jetStreamLog) ReadEvents(ctx context.Context, id event.LogID, selector version.Selector) event.Records {
	return func(yield func(*event.Record, error) bool) {
		subject := l.subject(id)
		_, last, err := l.head(ctx, subject)
		if err != nil {
			yield(nil, err)
			return
		}
		if last == 0 {
			return
		}

		consumer, err := l.conn.JetStream().OrderedConsumer(ctx, l.stream, jetstream.OrderedConsumerConfig{
			FilterSubjects: []string{subject},
		})
		if err != nil {
			yield(nil, fmt.Errorf("read history of %s: %w", id, err))
			return
		}
		msgs, err := consumer.Messages()
		if err != nil {
			yield(nil, fmt.Errorf("read history of %s: %w", id, err))
			return
		}
		defer msgs.Stop()

		for {
			msg, err := msgs.Next()
			if err != nil {
				yield(nil, fmt.Errorf("read history of %s: %w", id, err))
				return
			}
			meta, err := msg.Metadata()
			if err != nil {
				yield(nil, fmt.Errorf("read history of %s: %w", id, err))
				return
			}
			records, err := decodeAppend(id, msg.Headers(), msg.Data())
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range records {
				if rec.Version() < selector.From {
					continue
				}
				if selector.To != 0 && rec.Version() > selector.To {
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
			if meta.Sequence.Stream >= last {
				return
			}
		}
	}
}

// decodeAppend expands one stored append into records numbered up to the
// version in its header.
func decodeAppend(id event.LogID, header nats.Header, data []byte) ([]*event.Record, error) {
	last, err := parseVersion(header)
	if err != nil {
		return nil, err
	}
	var batch []appended
	if err := msgpack.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode history append of %s: %w", id, err)
	}
	if uint64(len(batch)) > uint64(last) {
		return nil, fmt.Errorf("history append of %s holds %d events but ends at version %d", id, len(batch), last)
	}
	first := last - version.Version(len(batch)) + 1
	records := make([]*event.Record, len(batch))
	for i, e := range batch {
		records[i] = event.NewRecord(first+version.Version(i), id, e.Name, e.Data)
	}
	return records, nil
}

func parseVersion(header nats.Header) (version.Version, error) {
	raw := header.Get(headerVersion)
	if raw == "" {
		return version.Zero, fmt.Errorf("history entry has no %s header", headerVersion)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return version.Zero, fmt.Errorf("history entry version %q: %w", raw, err)
	}
	return version.Version(v), nil
}
