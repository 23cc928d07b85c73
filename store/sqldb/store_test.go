package sqldb

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	numbered := &queries{d: &Dialect{NumberedParams: true}}
	assert.Equal(t,
		"UPDATE vouchers SET status = $1 WHERE id = $2 AND status = $3",
		numbered.rebind("UPDATE vouchers SET status = ? WHERE id = ? AND status = ?"))

	plain := &queries{d: &Dialect{}}
	assert.Equal(t, "SELECT 1 WHERE a = ?", plain.rebind("SELECT 1 WHERE a = ?"))
}

func TestTimeFormat_SortsLexically(t *testing.T) {
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(time.Second),
		base.Add(500 * time.Millisecond),
		base.Add(time.Nanosecond),
		base,
		base.Add(24 * time.Hour),
	}
	var formatted []string
	for _, ts := range times {
		formatted = append(formatted, formatTime(ts))
	}
	sort.Strings(formatted)

	var parsed []time.Time
	for _, s := range formatted {
		ts, err := parseTime(s)
		require.NoError(t, err)
		parsed = append(parsed, ts)
	}
	for i := 1; i < len(parsed); i++ {
		assert.True(t, parsed[i-1].Before(parsed[i]), "%s before %s", formatted[i-1], formatted[i])
	}
}

func TestFormatTime_NormalizesZone(t *testing.T) {
	london := time.FixedZone("BST", 3600)
	local := time.Date(2026, time.June, 1, 13, 0, 0, 0, london)
	assert.Equal(t, "2026-06-01T12:00:00.000000000Z", formatTime(local))
}
