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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngnhng/replayflow/api"
	jetstreamx "github.com/ngnhng/replayflow/internal/infra/jetstream"
)

// DefaultDuplicateWindow is how long JetStream remembers message ids.
const DefaultDuplicateWindow = 10 * time.Minute

// Topology names the streams, subjects, consumers and buckets of one
// namespace. The zero value is the default namespace.
type Topology struct {
	Namespace string
}

// MaxNamespaceLength keeps prefixed names within JetStream's limits.
const MaxNamespaceLength = 63

// Validate checks that the namespace is DNS-safe: lowercase letters, digits
// and inner hyphens. The empty namespace is valid.
func (t Topology) Validate() error {
	ns := strings.TrimSpace(t.Namespace)
	if ns == "" {
		return nil
	}
	if len(ns) > MaxNamespaceLength {
		return fmt.Errorf("namespace %q is longer than %d characters", ns, MaxNamespaceLength)
	}
	if ns[0] == '-' || ns[len(ns)-1] == '-' {
		return fmt.Errorf("namespace %q must start and end with a letter or digit", ns)
	}
	for _, r := range ns {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return fmt.Errorf("namespace %q may only hold lowercase letters, digits and hyphens", ns)
		}
	}
	return nil
}

func (t Topology) prefixed(name, sep string) string {
	ns := strings.TrimSpace(t.Namespace)
	if ns == "" {
		return name
	}
	return ns + sep + name
}

func (t Topology) TasksStream() string    { return t.prefixed(api.TasksStream, "_") }
func (t Topology) OutcomesStream() string { return t.prefixed(api.OutcomesStream, "_") }
func (t Topology) TimersStream() string   { return t.prefixed(api.TimersStream, "_") }
func (t Topology) HistoryStream() string  { return t.prefixed(api.HistoryStream, "_") }
func (t Topology) ResultBucket() string   { return t.prefixed(api.RunResultBucket, "_") }

func (t Topology) TaskConsumer() string    { return t.prefixed(api.TaskWorkerConsumer, "_") }
func (t Topology) OutcomeConsumer() string { return t.prefixed(api.OutcomeWorkerConsumer, "_") }
func (t Topology) TimerConsumer() string   { return t.prefixed(api.TimerServiceConsumer, "_") }

func (t Topology) HistorySubjectPrefix() string { return t.prefixed(api.HistorySubjectPrefix, ".") }

func (t Topology) TaskSubject(name string) string {
	return t.prefixed(fmt.Sprintf(api.TaskPublishSubjectPattern, name), ".")
}

func (t Topology) OutcomeSubject(runID api.RunID) string {
	return t.prefixed(fmt.Sprintf(api.OutcomePublishSubjectPattern, runID), ".")
}

func (t Topology) TimerSubject(runID api.RunID) string {
	return t.prefixed(fmt.Sprintf(api.TimerPublishSubjectPattern, runID), ".")
}

func (t Topology) tasksFilter() string    { return t.prefixed(api.TasksFilterSubjectPattern, ".") }
func (t Topology) outcomesFilter() string { return t.prefixed(api.OutcomesFilterSubjectPattern, ".") }
func (t Topology) timersFilter() string   { return t.prefixed(api.TimersFilterSubjectPattern, ".") }

// Provision creates or updates the streams and the result bucket.
func (t Topology) Provision(ctx context.Context, conn *jetstreamx.Connection) error {
	streams := []jetstream.StreamConfig{
		{
			Name:       t.TasksStream(),
			Subjects:   []string{t.tasksFilter()},
			Retention:  jetstream.WorkQueuePolicy,
			Storage:    jetstream.FileStorage,
			Duplicates: DefaultDuplicateWindow,
		},
		{
			Name:       t.OutcomesStream(),
			Subjects:   []string{t.outcomesFilter()},
			Retention:  jetstream.WorkQueuePolicy,
			Storage:    jetstream.FileStorage,
			Duplicates: DefaultDuplicateWindow,
		},
		{
			Name:       t.TimersStream(),
			Subjects:   []string{t.timersFilter()},
			Retention:  jetstream.WorkQueuePolicy,
			Storage:    jetstream.FileStorage,
			Duplicates: DefaultDuplicateWindow,
		},
	}
	for _, cfg := range streams {
		if _, err := conn.EnsureStream(ctx, cfg); err != nil {
			return fmt.Errorf("failed to ensure stream %s: %w", cfg.Name, err)
		}
	}

	if _, err := conn.EnsureKV(ctx, jetstream.KeyValueConfig{
		Bucket:  t.ResultBucket(),
		Storage: jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("failed to ensure result bucket: %w", err)
	}
	return nil
}
