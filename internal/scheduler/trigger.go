package scheduler

import (
	"fmt"
	"sort"
	"time"

	"briefly/internal/model"
)

// Trigger computes when a job fires. Triggers are immutable; changing a
// job's schedule means installing a new trigger, never mutating one in place.
type Trigger interface {
	// Next returns the first fire time strictly after the given instant.
	Next(after time.Time) time.Time
	Description() string
}

// IntervalTrigger fires on a fixed period.
type IntervalTrigger struct {
	Every time.Duration
}

func (t IntervalTrigger) Next(after time.Time) time.Time {
	return after.Add(t.Every)
}

func (t IntervalTrigger) Description() string {
	return fmt.Sprintf("every %s", t.Every)
}

// MinutesTrigger fires at the given minutes of every hour.
type MinutesTrigger struct {
	Minutes []int
}

func (t MinutesTrigger) Next(after time.Time) time.Time {
	minutes := append([]int(nil), t.Minutes...)
	sort.Ints(minutes)

	top := after.Truncate(time.Hour)
	for hour := 0; ; hour++ {
		base := top.Add(time.Duration(hour) * time.Hour)
		for _, m := range minutes {
			candidate := base.Add(time.Duration(m) * time.Minute)
			if candidate.After(after) {
				return candidate
			}
		}
	}
}

func (t MinutesTrigger) Description() string {
	return fmt.Sprintf("at minutes %v of every hour", t.Minutes)
}

// DailyTrigger fires once a day at a fixed time.
type DailyTrigger struct {
	Hour, Minute int
}

func (t DailyTrigger) Next(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), t.Hour, t.Minute, 0, 0, after.Location())
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (t DailyTrigger) Description() string {
	return fmt.Sprintf("daily at %02d:%02d", t.Hour, t.Minute)
}

// WeeklyTrigger fires once a week on a fixed weekday and time.
type WeeklyTrigger struct {
	Weekday      time.Weekday
	Hour, Minute int
}

func (t WeeklyTrigger) Next(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), t.Hour, t.Minute, 0, 0, after.Location())
	for candidate.Weekday() != t.Weekday || !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (t WeeklyTrigger) Description() string {
	return fmt.Sprintf("weekly on %s at %02d:%02d", t.Weekday, t.Hour, t.Minute)
}

// MonthlyTrigger fires once a month on a fixed day (1-28) and time.
type MonthlyTrigger struct {
	Day          int
	Hour, Minute int
}

func (t MonthlyTrigger) Next(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), t.Day, t.Hour, t.Minute, 0, 0, after.Location())
	if !candidate.After(after) {
		candidate = time.Date(after.Year(), after.Month()+1, t.Day, t.Hour, t.Minute, 0, 0, after.Location())
	}
	return candidate
}

func (t MonthlyTrigger) Description() string {
	return fmt.Sprintf("monthly on day %d at %02d:%02d", t.Day, t.Hour, t.Minute)
}

// BuildPushTrigger derives the push job's trigger from the webhook
// configuration.
func BuildPushTrigger(cfg *model.WebhookConfig) (Trigger, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(cfg.ScheduleTime, "%d:%d", &hour, &minute); err != nil {
		return nil, fmt.Errorf("invalid schedule time %q: %w", cfg.ScheduleTime, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid schedule time %q", cfg.ScheduleTime)
	}

	switch cfg.ScheduleFrequency {
	case model.FreqHourly:
		return IntervalTrigger{Every: time.Hour}, nil
	case model.FreqDaily:
		return DailyTrigger{Hour: hour, Minute: minute}, nil
	case model.FreqWeekly:
		if cfg.ScheduleDayOfWeek < 1 || cfg.ScheduleDayOfWeek > 7 {
			return nil, fmt.Errorf("invalid day of week %d", cfg.ScheduleDayOfWeek)
		}
		// Config counts Monday=1..Sunday=7; time.Weekday counts Sunday=0.
		return WeeklyTrigger{
			Weekday: time.Weekday(cfg.ScheduleDayOfWeek % 7),
			Hour:    hour,
			Minute:  minute,
		}, nil
	case model.FreqMonthly:
		if cfg.ScheduleDayOfMonth < 1 || cfg.ScheduleDayOfMonth > 28 {
			return nil, fmt.Errorf("invalid day of month %d", cfg.ScheduleDayOfMonth)
		}
		return MonthlyTrigger{Day: cfg.ScheduleDayOfMonth, Hour: hour, Minute: minute}, nil
	}
	return nil, fmt.Errorf("unknown schedule frequency %q", cfg.ScheduleFrequency)
}
