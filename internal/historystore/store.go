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

// Package historystore opens the chronicle event log that holds run histories.
package historystore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/DeluxeOwl/chronicle/event"
	"github.com/DeluxeOwl/chronicle/eventlog"
	"github.com/cockroachdb/pebble"
	_ "github.com/mattn/go-sqlite3"

	jetstreamx "github.com/ngnhng/replayflow/internal/infra/jetstream"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendPebble Backend = "pebble"
	BackendNATS   Backend = "nats"
)

const (
	DefaultSQLitePath = "replayflow.db"
	DefaultPebbleDir  = "replayflow-history"
	DefaultTableName  = "replayflow_history"

	DefaultStreamName    = "REPLAYFLOW_HISTORY"
	DefaultSubjectPrefix = "history"
)

type Config struct {
	Backend Backend
	// SQLitePath is the database file of the sqlite backend.
	SQLitePath string
	// PebbleDir is the data directory of the pebble backend.
	PebbleDir string

	// Conn, StreamName and SubjectPrefix configure the nats backend.
	Conn          *jetstreamx.Connection
	StreamName    string
	SubjectPrefix string
}

// Store is an opened history event log.
type Store struct {
	Log     event.Log
	Backend Backend
	closer  func() error
}

func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func Open(cfg Config) (*Store, error) {
	backend := Backend(strings.ToLower(strings.TrimSpace(string(cfg.Backend))))
	switch backend {
	case "", BackendMemory:
		return &Store{Log: eventlog.NewMemory(), Backend: BackendMemory}, nil

	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = DefaultSQLitePath
		}
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		log, err := eventlog.NewSqlite(db, eventlog.SqliteTableName(DefaultTableName))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{Log: log, Backend: BackendSQLite, closer: db.Close}, nil

	case BackendPebble:
		dir := cfg.PebbleDir
		if dir == "" {
			dir = DefaultPebbleDir
		}
		db, err := pebble.Open(dir, &pebble.Options{})
		if err != nil {
			return nil, fmt.Errorf("open pebble %s: %w", dir, err)
		}
		return &Store{Log: eventlog.NewPebble(db), Backend: BackendPebble, closer: db.Close}, nil

	case BackendNATS:
		if cfg.Conn == nil {
			return nil, errors.New("nats history backend needs a connection")
		}
		stream, prefix := cfg.StreamName, cfg.SubjectPrefix
		if stream == "" {
			stream = DefaultStreamName
		}
		if prefix == "" {
			prefix = DefaultSubjectPrefix
		}
		log := newJetStreamLog(cfg.Conn, stream, prefix)
		return &Store{Log: log, Backend: BackendNATS}, nil

	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
