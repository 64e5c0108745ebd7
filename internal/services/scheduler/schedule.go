package scheduler

import (
	"fmt"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/robfig/cron/v3"
)

// parser accepts 5-field expressions, an optional leading seconds field and descriptors.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ScheduleSet is an ordered set of cron expressions firing at the earliest
// next occurrence of any member.
type ScheduleSet struct {
	exprs     []string
	schedules []cron.Schedule
}

// NewScheduleSet parses exprs. An expression that does not parse or never
// fires is a validation error.
func NewScheduleSet(exprs []string) (*ScheduleSet, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("%w: at least one cron expression is required", models.ErrValidation)
	}

	now := time.Now()
	set := &ScheduleSet{
		exprs:     make([]string, 0, len(exprs)),
		schedules: make([]cron.Schedule, 0, len(exprs)),
	}
	for _, expr := range exprs {
		schedule, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid cron expression %q: %v", models.ErrValidation, expr, err)
		}
		if schedule.Next(now).IsZero() {
			return nil, fmt.Errorf("%w: cron expression %q never fires", models.ErrValidation, expr)
		}
		set.exprs = append(set.exprs, expr)
		set.schedules = append(set.schedules, schedule)
	}
	return set, nil
}

// Next returns the earliest occurrence strictly after t.
func (s *ScheduleSet) Next(t time.Time) time.Time {
	var next time.Time
	for _, schedule := range s.schedules {
		n := schedule.Next(t)
		if n.IsZero() {
			continue
		}
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

// Expressions returns the expressions in the order given.
func (s *ScheduleSet) Expressions() []string {
	return append([]string(nil), s.exprs...)
}
