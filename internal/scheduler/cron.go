package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Conductor/internal/domain"
)

// cronParser — парсер cron-выражений: пять стандартных полей.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextDue вычисляет следующее время срабатывания cron-триггера.
// Учитывает timezone триггера; результат возвращается в UTC.
func NextDue(trigger *domain.Trigger, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(trigger.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", trigger.CronExpr, err)
	}

	loc := time.UTC
	if trigger.Timezone != "" {
		if l, err := time.LoadLocation(trigger.Timezone); err == nil {
			loc = l
		}
	}

	return schedule.Next(from.In(loc)).UTC(), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
