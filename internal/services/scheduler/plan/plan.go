// Package plan loads the refresh plan: which entity kinds are collected on
// which cadence, in which timezone, with which change thresholds. The plan
// lives in a YAML file and can be edited without restarting the pipeline.
package plan

import (
	"os"
	"strings"
	"time"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/core/changes"
	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/platform/net/http/bind"
	"marketpulse/internal/services/scheduler/domain"

	"gopkg.in/yaml.v3"
)

// File is the YAML schema of the plan file
type File struct {
	Timezone   string             `yaml:"timezone"`
	Thresholds changes.Thresholds `yaml:"thresholds"`
	Jobs       []JobSpec          `yaml:"jobs" validate:"required,min=1,dive"`
}

// JobSpec is one job entry in the plan file
type JobSpec struct {
	Name    string `yaml:"name" validate:"required"`
	Kind    string `yaml:"kind" validate:"required"`
	Cadence string `yaml:"cadence" validate:"required,oneof=daily weekly monthly every"`

	// At is HH:MM for daily/weekly/monthly cadences
	At string `yaml:"at,omitempty"`

	// Weekday qualifies weekly cadences
	Weekday string `yaml:"weekday,omitempty"`

	// Day qualifies monthly cadences (1..31, clamped to month length)
	Day int `yaml:"day,omitempty" validate:"omitempty,min=1,max=31"`

	// Interval qualifies the every cadence
	Interval time.Duration `yaml:"interval,omitempty"`
}

// Plan is the compiled, validated form the scheduler consumes
type Plan struct {
	Location   *time.Location
	Thresholds changes.Thresholds
	Jobs       []domain.Job
}

// Default is the plan used when no file is configured: rentals daily, the
// slower registries weekly, indicators monthly.
func Default() Plan {
	loc := mustLocation("Asia/Dubai")
	return Plan{
		Location:   loc,
		Thresholds: changes.DefaultThresholds(),
		Jobs: []domain.Job{
			{Name: "rentals", Kind: canon.KindRental, Cadence: domain.DailyAt(2, 0, loc)},
			{Name: "properties", Kind: canon.KindProperty, Cadence: domain.WeeklyAt(time.Monday, 3, 0, loc)},
			{Name: "developers", Kind: canon.KindDeveloper, Cadence: domain.WeeklyAt(time.Monday, 5, 0, loc)},
			{Name: "indicators", Kind: canon.KindIndicator, Cadence: domain.MonthlyAt(1, 6, 0, loc)},
		},
	}
}

// Load reads, validates and compiles the plan file
func Load(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, perr.Wrap(err, perr.ErrorCodeConfiguration, "read plan file")
	}
	return Parse(data)
}

// Parse validates and compiles plan file contents
func Parse(data []byte) (Plan, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Plan{}, perr.Wrap(err, perr.ErrorCodeConfiguration, "decode plan yaml")
	}
	if err := bind.Struct(f); err != nil {
		return Plan{}, err
	}

	loc := time.UTC
	if f.Timezone != "" {
		l, err := loadLocation(f.Timezone)
		if err != nil {
			return Plan{}, err
		}
		loc = l
	}

	// each threshold defaults independently so a plan can override just one
	th := f.Thresholds
	def := changes.DefaultThresholds()
	if th.MetricPct <= 0 && th.VolumePct <= 0 {
		th = def
	} else {
		if th.MetricPct <= 0 {
			th.MetricPct = def.MetricPct
		}
		if th.VolumePct <= 0 {
			th.VolumePct = def.VolumePct
		}
	}

	p := Plan{Location: loc, Thresholds: th}
	seen := map[string]bool{}
	for _, spec := range f.Jobs {
		if seen[spec.Name] {
			return Plan{}, perr.Newf(perr.ErrorCodeConfiguration, "duplicate job %q", spec.Name)
		}
		seen[spec.Name] = true

		job, err := compile(spec, loc)
		if err != nil {
			return Plan{}, err
		}
		p.Jobs = append(p.Jobs, job)
	}
	return p, nil
}

func compile(spec JobSpec, loc *time.Location) (domain.Job, error) {
	kind, err := canon.ParseKind(spec.Kind)
	if err != nil {
		return domain.Job{}, perr.Wrapf(err, perr.ErrorCodeConfiguration, "job %q", spec.Name)
	}

	var cadence domain.Cadence
	switch spec.Cadence {
	case "daily":
		h, m, err := parseClock(spec.At)
		if err != nil {
			return domain.Job{}, perr.Wrapf(err, perr.ErrorCodeConfiguration, "job %q", spec.Name)
		}
		cadence = domain.DailyAt(h, m, loc)
	case "weekly":
		h, m, err := parseClock(spec.At)
		if err != nil {
			return domain.Job{}, perr.Wrapf(err, perr.ErrorCodeConfiguration, "job %q", spec.Name)
		}
		wd, err := parseWeekday(spec.Weekday)
		if err != nil {
			return domain.Job{}, perr.Wrapf(err, perr.ErrorCodeConfiguration, "job %q", spec.Name)
		}
		cadence = domain.WeeklyAt(wd, h, m, loc)
	case "monthly":
		h, m, err := parseClock(spec.At)
		if err != nil {
			return domain.Job{}, perr.Wrapf(err, perr.ErrorCodeConfiguration, "job %q", spec.Name)
		}
		day := spec.Day
		if day == 0 {
			day = 1
		}
		cadence = domain.MonthlyAt(day, h, m, loc)
	case "every":
		if spec.Interval < time.Minute {
			return domain.Job{}, perr.Newf(perr.ErrorCodeConfiguration,
				"job %q: interval must be at least 1m, got %s", spec.Name, spec.Interval)
		}
		cadence = domain.Every(spec.Interval)
	}
	return domain.Job{Name: spec.Name, Kind: kind, Cadence: cadence}, nil
}

func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, perr.Newf(perr.ErrorCodeConfiguration, "invalid time of day %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, perr.Newf(perr.ErrorCodeConfiguration, "invalid weekday %q", s)
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfiguration, "unknown timezone %q", name)
	}
	return loc, nil
}

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
