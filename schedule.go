package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// SchedulePresets are the named schedules accepted in place of an expression.
var SchedulePresets = map[string]string{
	"@monthly":    "0 0 1 * ? *",
	"@daily":      "0 0 * * ? *",
	"@hourly":     "0 * * * ? *",
	"@minutely":   "* * * * ? *",
	"@sunday":     "0 0 ? * 1 *",
	"@monday":     "0 0 ? * 2 *",
	"@tuesday":    "0 0 ? * 3 *",
	"@wednesday":  "0 0 ? * 4 *",
	"@thursday":   "0 0 ? * 5 *",
	"@friday":     "0 0 ? * 6 *",
	"@saturday":   "0 0 ? * 7 *",
	"@every10min": "0/10 * * * ? *",
}

// longest gap we are willing to search for two previous firings
const maxLookback = 8 * 366 * 24 * time.Hour

var dayNames = map[string]bool{"SUN": true, "MON": true, "TUE": true, "WED": true, "THU": true, "FRI": true, "SAT": true}

// Schedule is a parsed six-field expression (minutes hours day-of-month
// month day-of-week year, day-of-week 1-7 with 1 = Sunday) evaluated in UTC.
type Schedule struct {
	Expression string
	rule       cron.Schedule
	standard   string
	years      yearSet
}

func ParseSchedule(definition string) (*Schedule, error) {
	expression := strings.TrimSpace(definition)
	if preset, ok := SchedulePresets[expression]; ok {
		expression = preset
	}

	fields := strings.Fields(expression)
	if len(fields) != 6 {
		return nil, fmt.Errorf("invalid schedule %q: expected a preset or 6 fields, got %d", definition, len(fields))
	}
	for _, field := range fields {
		if hasUnsupportedToken(field) {
			return nil, fmt.Errorf("invalid schedule %q: L, W and # are not supported", definition)
		}
	}

	dow, err := shiftDayOfWeek(fields[4])
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", definition)
	}
	years, err := parseYears(fields[5])
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", definition)
	}

	standard := strings.Join([]string{fields[0], fields[1], fields[2], fields[3], dow}, " ")
	rule, err := cron.ParseStandard(standard)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", definition)
	}

	return &Schedule{Expression: expression, rule: rule, standard: standard, years: years}, nil
}

// Standard is the five-field form understood by robfig/cron based schedulers.
// The year field is not part of it; use MatchesYear when firing.
func (s *Schedule) Standard() string {
	return s.standard
}

func (s *Schedule) MatchesYear(t time.Time) bool {
	return s.years.matches(t.UTC().Year())
}

// Next returns the first firing strictly after t, or the zero time.
func (s *Schedule) Next(t time.Time) time.Time {
	next := s.rule.Next(t.UTC())
	for !next.IsZero() && !s.years.matches(next.Year()) {
		year, ok := s.years.next(next.Year())
		if !ok {
			return time.Time{}
		}
		next = s.rule.Next(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond))
	}

	return next
}

// Previous returns the n most recent firings strictly before t, most recent
// first.
func (s *Schedule) Previous(t time.Time, n int) ([]time.Time, error) {
	t = t.UTC()
	for lookback := 2 * time.Minute; lookback <= maxLookback; lookback *= 2 {
		firings := make([]time.Time, 0, n)
		for next := s.Next(t.Add(-lookback)); !next.IsZero() && next.Before(t); next = s.Next(next) {
			firings = append(firings, next)
		}
		if len(firings) >= n {
			firings = firings[len(firings)-n:]
			for i, j := 0, len(firings)-1; i < j; i, j = i+1, j-1 {
				firings[i], firings[j] = firings[j], firings[i]
			}
			return firings, nil
		}
	}

	return nil, fmt.Errorf("schedule %q fired fewer than %d times before %s", s.Expression, n, t.Format(time.RFC3339))
}

// Latest returns the most recent firing at or before t.
func (s *Schedule) Latest(t time.Time) (time.Time, error) {
	prev, err := s.Previous(t.UTC().Add(time.Nanosecond), 1)
	if err != nil {
		return time.Time{}, err
	}

	return prev[0], nil
}

// SafeTimeCompare returns the instant after which a remote file counts as new
// for a run that started at start. The run is assumed to serve the latest
// firing at or before start.
func SafeTimeCompare(schedule *Schedule, start time.Time) (time.Time, error) {
	return SafeTimeCompareFor(schedule, time.Time{}, start)
}

// SafeTimeCompareFor is SafeTimeCompare for a run serving a known firing.
// If the run started more than one nominal interval after that firing the
// window is widened by one interval so files changed during the gap are
// picked up. A zero scheduled means the latest firing at or before start.
func SafeTimeCompareFor(schedule *Schedule, scheduled, start time.Time) (time.Time, error) {
	start = start.UTC()
	if scheduled.IsZero() {
		latest, err := schedule.Latest(start)
		if err != nil {
			return time.Time{}, err
		}
		scheduled = latest
	}

	prev, err := schedule.Previous(scheduled, 2)
	if err != nil {
		return time.Time{}, err
	}

	startDiff := start.Sub(scheduled)
	expectedDiff := prev[0].Sub(prev[1])
	if startDiff > expectedDiff {
		return prev[1], nil
	}

	return prev[0], nil
}

// hasUnsupportedToken reports L, W or # modifiers. Three letter month and
// day names are left for the cron parser to validate.
func hasUnsupportedToken(field string) bool {
	for _, token := range strings.FieldsFunc(field, func(r rune) bool { return r == ',' || r == '-' || r == '/' }) {
		if len(token) == 3 && strings.Trim(strings.ToUpper(token), "ABCDEFGHIJKLMNOPQRSTUVWXYZ") == "" {
			continue
		}
		if strings.ContainsAny(strings.ToUpper(token), "LW#") {
			return true
		}
	}

	return false
}

// shiftDayOfWeek converts numeric days 1-7 (Sunday first) to 0-6.
func shiftDayOfWeek(field string) (string, error) {
	if field == "*" || field == "?" {
		return field, nil
	}

	parts := strings.Split(field, ",")
	for i, part := range parts {
		rangePart, step, hasStep := strings.Cut(part, "/")
		bounds := strings.Split(rangePart, "-")
		for j, bound := range bounds {
			if bound == "*" || dayNames[strings.ToUpper(bound)] {
				continue
			}
			day, err := strconv.Atoi(bound)
			if err != nil || day < 1 || day > 7 {
				return "", fmt.Errorf("day-of-week %q out of range 1-7", bound)
			}
			bounds[j] = strconv.Itoa(day - 1)
		}
		parts[i] = strings.Join(bounds, "-")
		if hasStep {
			parts[i] += "/" + step
		}
	}

	return strings.Join(parts, ","), nil
}

type yearRange struct{ from, to, step int }

// yearSet is a parsed year field. An empty set matches every year.
type yearSet []yearRange

const lastYear = 2199

func (y yearSet) matches(year int) bool {
	if len(y) == 0 {
		return true
	}
	for _, r := range y {
		if year >= r.from && year <= r.to && (year-r.from)%r.step == 0 {
			return true
		}
	}

	return false
}

// next returns the first matching year after year.
func (y yearSet) next(year int) (int, bool) {
	for candidate := year + 1; candidate <= lastYear; candidate++ {
		if y.matches(candidate) {
			return candidate, true
		}
	}

	return 0, false
}

func parseYears(field string) (yearSet, error) {
	if field == "*" || field == "?" {
		return nil, nil
	}

	years := make(yearSet, 0)
	for _, part := range strings.Split(field, ",") {
		rangePart, stepPart, hasStep := strings.Cut(part, "/")
		r := yearRange{from: 1970, to: lastYear, step: 1}
		if rangePart != "*" {
			from, to, isRange := strings.Cut(rangePart, "-")
			var err error
			if r.from, err = strconv.Atoi(from); err != nil {
				return nil, fmt.Errorf("invalid year %q", from)
			}
			r.to = r.from
			if isRange {
				if r.to, err = strconv.Atoi(to); err != nil {
					return nil, fmt.Errorf("invalid year %q", to)
				}
			} else if hasStep {
				r.to = lastYear
			}
		}
		if hasStep {
			step, err := strconv.Atoi(stepPart)
			if err != nil || step < 1 {
				return nil, fmt.Errorf("invalid year step %q", stepPart)
			}
			r.step = step
		}
		if r.to < r.from {
			return nil, fmt.Errorf("invalid year range %q", part)
		}
		years = append(years, r)
	}

	return years, nil
}
