// Package recurrence derives concrete session instances from a recurring
// master over a date window. Expansion is pure: the same master and window
// always yield the same instances, and nothing is ever written back.
package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/dmitrijs2005/studyplan/internal/planner/models"
)

// maxOccurrences caps a single expansion so a malformed unbounded rule cannot
// produce an unbounded instance list.
const maxOccurrences = 1000

// Expand returns the concrete instances of master that intersect the closed
// window [from, to]. Excluded dates are dropped, per-date overrides are
// applied (a cancellation removes the instance; a time shift or completion
// override changes only that instance), and an instance spanning the window
// boundary is kept as long as any part of it falls inside.
//
// Each instance carries a synthetic id derived from the master id and the
// instance date, plus a MasterID back-reference. Instances are never stored.
func Expand(master models.Session, from, to time.Time) ([]models.Session, error) {
	if !master.IsMaster() {
		return nil, fmt.Errorf("session %s has no recurrence descriptor", master.ID)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("window end %s before start %s",
			to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	rule, err := buildRule(master)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(rule)

	loc := master.Start.Location()
	for _, d := range master.Recurrence.Excluded {
		day, err := time.ParseInLocation(models.DateKey, d, loc)
		if err != nil {
			return nil, fmt.Errorf("bad excluded date %q: %w", d, err)
		}
		set.ExDate(occurrenceStart(master, day))
	}

	// Widen the query window backwards by the master's span so an instance
	// that starts before the window but runs into it is still produced.
	span := master.Duration()
	starts := set.Between(from.Add(-span).In(loc), to.In(loc), true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}

	out := make([]models.Session, 0, len(starts))
	for _, start := range starts {
		inst, ok := instantiate(master, start, span)
		if !ok {
			continue
		}
		if inst.End.Before(from) || inst.Start.After(to) {
			continue
		}
		out = append(out, inst)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// ExpandAll expands every master in sessions and passes plain sessions
// through when they intersect the window. Masters themselves are never part
// of the output.
func ExpandAll(sessions []models.Session, from, to time.Time) ([]models.Session, error) {
	var out []models.Session
	for _, sess := range sessions {
		if sess.IsMaster() {
			insts, err := Expand(sess, from, to)
			if err != nil {
				return nil, err
			}
			out = append(out, insts...)
			continue
		}
		if sess.End.Before(from) || sess.Start.After(to) {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func buildRule(master models.Session) (*rrule.RRule, error) {
	rec := master.Recurrence

	opt := rrule.ROption{Dtstart: master.Start}
	switch rec.Frequency {
	case models.FreqDaily:
		opt.Freq = rrule.DAILY
	case models.FreqWeekly:
		opt.Freq = rrule.WEEKLY
	case models.FreqMonthly:
		opt.Freq = rrule.MONTHLY
	default:
		return nil, fmt.Errorf("unknown frequency %q", rec.Frequency)
	}

	for _, wd := range rec.Weekdays {
		opt.Byweekday = append(opt.Byweekday, rruleWeekday(wd))
	}
	if rec.Count > 0 {
		opt.Count = rec.Count
	}
	if rec.Until != nil {
		opt.Until = *rec.Until
	}

	return rrule.NewRRule(opt)
}

func rruleWeekday(wd time.Weekday) rrule.Weekday {
	switch wd {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

// occurrenceStart places the master's time-of-day on the given calendar day.
func occurrenceStart(master models.Session, day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		master.Start.Hour(), master.Start.Minute(), master.Start.Second(), 0,
		master.Start.Location())
}

// instantiate builds the concrete instance for one occurrence start,
// applying the per-date override if any. The second return is false when the
// override cancels the instance.
func instantiate(master models.Session, start time.Time, span time.Duration) (models.Session, bool) {
	inst := master
	inst.Recurrence = nil
	inst.MasterID = master.ID
	inst.ID = models.InstanceID(master.ID, start)
	inst.Start = start
	inst.End = start.Add(span)
	inst.DurationMin = int(span / time.Minute)

	ov, ok := master.Recurrence.Overrides[start.Format(models.DateKey)]
	if !ok {
		return inst, true
	}
	if ov.Cancelled {
		return models.Session{}, false
	}
	if ov.Start != nil {
		inst.Start = *ov.Start
	}
	if ov.End != nil {
		inst.End = *ov.End
	}
	if ov.Start != nil || ov.End != nil {
		inst.DurationMin = int(inst.End.Sub(inst.Start) / time.Minute)
	}
	if ov.Attended != nil {
		inst.Attended = *ov.Attended
	}
	if ov.PercentComplete != nil {
		inst.PercentComplete = *ov.PercentComplete
	}
	return inst, true
}
