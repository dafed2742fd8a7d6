package compiler

import (
	"time"

	"propsift/internal/errors"
	"propsift/internal/predicate"
	"propsift/internal/registry"
)

// ResolvedRange is a concrete half-open interval [Start, End). A nil
// ResolvedRange (or the all_time preset) means no date constraint.
type ResolvedRange struct {
	Start  time.Time
	End    time.Time
	Preset string
}

// Date range presets.
const (
	PresetToday       = "today"
	PresetYesterday   = "yesterday"
	PresetThisWeek    = "this_week"
	PresetLast7Days   = "last_7_days"
	PresetLast30Days  = "last_30_days"
	PresetThisMonth   = "this_month"
	PresetLastMonth   = "last_month"
	PresetThisQuarter = "this_quarter"
	PresetThisYear    = "this_year"
	PresetAllTime     = "all_time"
)

// dateModeColumns maps date modes to store columns.
var dateModeColumns = map[string]string{
	registry.DateModeCreated:         "created_at",
	registry.DateModeUpdated:         "updated_at",
	registry.DateModeJunctionCreated: "created_at",
	registry.DateModeCompleted:       "completed_at",
	registry.DateModeDue:             "due_date",
}

// resolveDateRange picks the effective range: the widget-level override if
// given, else the global range, never both.
func (c *Compiler) resolveDateRange(input *WidgetQueryInput, ctx *CompileCtx) (*ResolvedRange, error) {
	dr := input.DateRange
	if dr == nil {
		dr = input.GlobalFilters.DateRange
	}
	if dr == nil {
		return nil, nil
	}

	loc := time.UTC
	if ctx.Timezone != "" {
		l, err := time.LoadLocation(ctx.Timezone)
		if err != nil {
			return nil, errors.New(errors.InvalidDateRange, "unknown timezone %q", ctx.Timezone)
		}
		loc = l
	}

	if dr.Preset != "" {
		return resolvePreset(dr.Preset, c.now().In(loc), loc)
	}
	return resolveCustom(dr, loc)
}

func resolvePreset(preset string, now time.Time, loc *time.Location) (*ResolvedRange, error) {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	today := day(now)

	switch preset {
	case PresetToday:
		return &ResolvedRange{Start: today, End: today.AddDate(0, 0, 1), Preset: preset}, nil
	case PresetYesterday:
		return &ResolvedRange{Start: today.AddDate(0, 0, -1), End: today, Preset: preset}, nil
	case PresetThisWeek:
		// Week starts Sunday.
		start := today.AddDate(0, 0, -int(now.Weekday()))
		return &ResolvedRange{Start: start, End: start.AddDate(0, 0, 7), Preset: preset}, nil
	case PresetLast7Days:
		return &ResolvedRange{Start: today.AddDate(0, 0, -6), End: today.AddDate(0, 0, 1), Preset: preset}, nil
	case PresetLast30Days:
		return &ResolvedRange{Start: today.AddDate(0, 0, -29), End: today.AddDate(0, 0, 1), Preset: preset}, nil
	case PresetThisMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return &ResolvedRange{Start: start, End: start.AddDate(0, 1, 0), Preset: preset}, nil
	case PresetLastMonth:
		thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return &ResolvedRange{Start: thisMonth.AddDate(0, -1, 0), End: thisMonth, Preset: preset}, nil
	case PresetThisQuarter:
		qMonth := time.Month((int(now.Month())-1)/3*3 + 1)
		start := time.Date(now.Year(), qMonth, 1, 0, 0, 0, 0, loc)
		return &ResolvedRange{Start: start, End: start.AddDate(0, 3, 0), Preset: preset}, nil
	case PresetThisYear:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, loc)
		return &ResolvedRange{Start: start, End: start.AddDate(1, 0, 0), Preset: preset}, nil
	case PresetAllTime:
		return &ResolvedRange{Preset: preset}, nil
	default:
		return nil, errors.New(errors.InvalidDateRange, "unknown date range preset %q", preset)
	}
}

func resolveCustom(dr *DateRange, loc *time.Location) (*ResolvedRange, error) {
	if dr.Start == "" && dr.End == "" {
		return nil, errors.New(errors.InvalidDateRange, "date range needs a preset or custom bounds")
	}

	out := &ResolvedRange{}
	if dr.Start != "" {
		t, err := parseBound(dr.Start, loc, false)
		if err != nil {
			return nil, err
		}
		out.Start = t
	}
	if dr.End != "" {
		t, err := parseBound(dr.End, loc, true)
		if err != nil {
			return nil, err
		}
		out.End = t
	}
	if !out.Start.IsZero() && !out.End.IsZero() && out.End.Before(out.Start) {
		return nil, errors.New(errors.InvalidDateRange, "date range end %q precedes start %q", dr.End, dr.Start)
	}
	return out, nil
}

// parseBound accepts RFC3339 instants or plain dates. A plain-date end
// bound covers the whole day.
func parseBound(s string, loc *time.Location, isEnd bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, errors.New(errors.InvalidDateRange, "invalid date range bound %q", s)
	}
	if isEnd {
		return t.AddDate(0, 0, 1), nil
	}
	return t, nil
}

// dateRangeExpr applies the resolved range to the column selected by the
// date mode.
func dateRangeExpr(entity registry.EntityDefinition, dateMode string, rng *ResolvedRange) (predicate.Expr, error) {
	if rng == nil || rng.Preset == PresetAllTime {
		return nil, nil
	}
	col, ok := dateModeColumns[dateMode]
	if !ok {
		return nil, errors.New(errors.InvalidRequest, "unknown date mode %q", dateMode)
	}

	var parts []predicate.Expr
	if !rng.Start.IsZero() {
		parts = append(parts, predicate.Field{Name: col, Op: predicate.OpGte, Value: rng.Start})
	}
	if !rng.End.IsZero() {
		parts = append(parts, predicate.Field{Name: col, Op: predicate.OpLt, Value: rng.End})
	}
	return predicate.AndOf(parts...), nil
}
