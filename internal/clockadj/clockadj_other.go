//go:build !linux

// Package clockadj — установка системных часов.
package clockadj

import (
	"errors"
	"time"
)

// Step — на не-Linux системное время не меняется.
func Step(t time.Time) error {
	_ = t
	return errors.New("clockadj: cannot set system time on this os")
}

// Offset возвращает разницу t и текущего системного времени.
func Offset(t time.Time) (time.Duration, error) {
	return time.Until(t), nil
}
