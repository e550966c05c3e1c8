package evaluation

import (
	"strconv"
	"time"

	"evalhub/internal/domain/validation"
)

type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (p Period) Validate() error {
	var b validation.Builder
	if p.Year < 1 || p.Year > 9999 {
		b.Add("year", "must be between 1 and 9999")
	}
	if p.Month < 1 || p.Month > 12 {
		b.Add("month", "must be between 1 and 12")
	}
	return b.Err()
}

// Name renders the period as "January 2026".
func (p Period) Name() string {
	if p.Month < 1 || p.Month > 12 {
		return strconv.Itoa(p.Year) + "-" + strconv.Itoa(p.Month)
	}
	return time.Month(p.Month).String() + " " + strconv.Itoa(p.Year)
}

func (p Period) String() string {
	return p.Name()
}

// PeriodResolver maps a wall-clock instant to its calendar month in a fixed
// location. It holds no other state.
type PeriodResolver struct {
	loc *time.Location
}

func NewPeriodResolver(loc *time.Location) PeriodResolver {
	if loc == nil {
		loc = time.UTC
	}
	return PeriodResolver{loc: loc}
}

func (r PeriodResolver) Resolve(now time.Time) Period {
	loc := r.loc
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return Period{Year: local.Year(), Month: int(local.Month())}
}
