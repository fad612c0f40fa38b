//go:build linux

// Package clockadj — установка системных часов.
package clockadj

import (
	"time"

	"golang.org/x/sys/unix"
)

// Step устанавливает системное время (скачок). Требует CAP_SYS_TIME или root.
func Step(t time.Time) error {
	ts := unix.NsecToTimespec(t.UnixNano())
	return unix.ClockSettime(unix.CLOCK_REALTIME, &ts)
}

// Offset возвращает разницу t и текущего системного времени (CLOCK_REALTIME).
func Offset(t time.Time) (time.Duration, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return 0, err
	}
	return t.Sub(time.Unix(ts.Unix())), nil
}
