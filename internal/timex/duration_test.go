package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", in: `"1h"`, want: time.Hour},
		{name: "string seconds", in: `"90s"`, want: 90 * time.Second},
		{name: "nanoseconds", in: `1000000000`, want: time.Second},
		{name: "bad string", in: `"soon"`, wantErr: true},
		{name: "bool", in: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{Duration: 2 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, `"2m0s"`, string(b))
}

func TestSameMonth(t *testing.T) {
	base := time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC)

	assert.True(t, SameMonth(base, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, SameMonth(base, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, SameMonth(base, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)), "same month, other year")

	// 23:00 UTC on the 31st is already April in UTC+2.
	tz := time.FixedZone("UTC+2", 2*60*60)
	assert.True(t, SameMonth(base, base.In(tz)))
}
