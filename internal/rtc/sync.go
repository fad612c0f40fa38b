package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/shiwa/jetson-ds3231/internal/clockadj"
	"github.com/shiwa/jetson-ds3231/internal/logger"
)

// stepClock подменяется в тестах.
var stepClock = clockadj.Step

// HCToSys устанавливает системное время по RTC.
func HCToSys(d *Device) (time.Time, error) {
	t, err := d.ReadTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: read time: %w", d.Name(), err)
	}
	if err := stepClock(t); err != nil {
		return t, fmt.Errorf("%s: set system clock: %w", d.Name(), err)
	}
	return t, nil
}

// SysToHC записывает системное время в RTC, округляя до ближайшей секунды.
func SysToHC(d *Device, now time.Time) error {
	now = now.UTC()
	if now.Nanosecond() >= 5e8 {
		now = now.Add(time.Second)
	}
	return d.SetTime(now.Truncate(time.Second))
}

// RunSysToHC периодически записывает системное время в RTC до отмены ctx.
// Интервал меньше секунды заменяется секундой.
func RunSysToHC(ctx context.Context, d *Device, interval time.Duration) error {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := SysToHC(d, time.Now()); err != nil {
			logger.Error("%s: systohc: %v", d.Name(), err)
		}
	}
}
