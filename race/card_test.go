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

package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCard_KeepsDefaultsForMissingFields(t *testing.T) {
	card, err := ParseCard([]byte("laps: 4\n"))
	require.NoError(t, err)

	assert.Equal(t, 4, card.Laps)
	assert.Equal(t, DefaultHorses, card.Horses)
	assert.Equal(t, DefaultTaskTimeout, card.TaskTimeout)
	assert.Equal(t, int32(5), card.Retry.MaximumAttempts)
}

func TestLoadCard(t *testing.T) {
	card, err := LoadCard("testdata/sprint.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"Axlerod", "Bartholomew", "Cornelius", "Dexter"}, card.Horses)
	assert.Equal(t, 3, card.Laps)
	assert.Equal(t, 500*time.Millisecond, card.GateDelayMax)
	assert.Equal(t, 5*time.Minute, card.WorkflowTimeout)

	policy := card.RetryPolicy()
	assert.Equal(t, time.Second, policy.InitialInterval)
	assert.Equal(t, 10*time.Second, policy.MaximumInterval)
	assert.Equal(t, 2.0, policy.BackoffCoefficient)
	assert.Equal(t, int32(3), policy.MaximumAttempts)
}

func TestLoadCard_MissingFile(t *testing.T) {
	_, err := LoadCard("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestParseCard_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "no horses", yaml: "horses: []\n", want: "at least one horse"},
		{name: "duplicate horse", yaml: "horses: [A, B, A]\n", want: `"A" entered twice`},
		{name: "no laps", yaml: "laps: 0\n", want: "laps must be positive"},
		{name: "injury chance", yaml: "injury_chance: 1.5\n", want: "injury chance"},
		{name: "negative delay", yaml: "lap_delay_max: -1s\n", want: "delays must not be negative"},
		{name: "malformed", yaml: "laps: [\n", want: "parse race card"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCard([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCardInput_CopiesHorses(t *testing.T) {
	card := DefaultCard()
	in := card.Input()
	in.Horses[0] = "Changed"

	assert.Equal(t, DefaultHorses[0], card.Horses[0])
	assert.Equal(t, card.Laps, in.Laps)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "INJURY", StatusInjury.String())
}
