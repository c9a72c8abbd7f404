package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"string form", `"45s"`, 45 * time.Second, false},
		{"string minutes", `"10m"`, 10 * time.Minute, false},
		{"number is nanoseconds", `30000000000`, 30 * time.Second, false},
		{"bad string", `"forever"`, 0, true},
		{"bool rejected", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDurationMarshal(t *testing.T) {
	b, err := json.Marshal(Duration{45 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"45s"`, string(b))
}
