package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"evalhub/internal/domain/validation"
)

func TestResolveUsesLocation(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata not available")
	}
	instant := time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		loc  *time.Location
		want Period
	}{
		{name: "utc", loc: time.UTC, want: Period{Year: 2025, Month: 12}},
		{name: "nil means utc", loc: nil, want: Period{Year: 2025, Month: 12}},
		{name: "paris already in january", loc: paris, want: Period{Year: 2026, Month: 1}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NewPeriodResolver(tc.loc).Resolve(instant))
		})
	}
}

func TestZeroResolverIsUTC(t *testing.T) {
	var r PeriodResolver
	assert.Equal(t, Period{Year: 2026, Month: 2}, r.Resolve(time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)))
}

func TestPeriodValidate(t *testing.T) {
	assert.NoError(t, Period{Year: 2026, Month: 1}.Validate())

	err := Period{Year: 0, Month: 13}.Validate()
	var verr *validation.Error
	if assert.ErrorAs(t, err, &verr) {
		assert.Len(t, verr.Issues, 2)
	}
}

func TestPeriodName(t *testing.T) {
	assert.Equal(t, "January 2026", Period{Year: 2026, Month: 1}.Name())
	assert.Equal(t, "December 2025", Period{Year: 2025, Month: 12}.String())
	assert.Equal(t, "2025-13", Period{Year: 2025, Month: 13}.Name())
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	c.Advance(2 * time.Hour)
	assert.Equal(t, Period{Year: 2026, Month: 2}, NewPeriodResolver(time.UTC).Resolve(c.Now()))
	c.Set(start)
	assert.Equal(t, start, c.Now())
}
