package ds3231

import (
	"fmt"
	"time"
)

// AlarmID выбирает будильник чипа.
type AlarmID int

const (
	Alarm1 AlarmID = 1 // секунды, минуты, часы, день/число
	Alarm2 AlarmID = 2 // минуты, часы, день/число; срабатывает в 00 секунд
)

func (id AlarmID) base() uint16 {
	if id == Alarm2 {
		return RegAlarm2Minutes
	}
	return RegAlarm1Seconds
}

func (id AlarmID) size() int {
	if id == Alarm2 {
		return 3
	}
	return 4
}

func (id AlarmID) valid() bool { return id == Alarm1 || id == Alarm2 }

// AlarmRate — условие совпадения будильника (биты AxMy и DY/DT).
type AlarmRate int

const (
	// RateEvery — каждую секунду (Alarm1) или каждую минуту (Alarm2).
	RateEvery AlarmRate = iota
	// RateSecond — совпадение секунд (только Alarm1).
	RateSecond
	// RateMinute — совпадение минут (и секунд для Alarm1).
	RateMinute
	// RateHour — совпадение часов, минут (и секунд).
	RateHour
	// RateDate — совпадение числа месяца и времени.
	RateDate
	// RateWeekday — совпадение дня недели и времени.
	RateWeekday
)

func (r AlarmRate) String() string {
	switch r {
	case RateEvery:
		return "every"
	case RateSecond:
		return "second"
	case RateMinute:
		return "minute"
	case RateHour:
		return "hour"
	case RateDate:
		return "date"
	case RateWeekday:
		return "weekday"
	default:
		return fmt.Sprintf("AlarmRate(%d)", int(r))
	}
}

const (
	alarmMask   = 0x80
	alarmDayFlg = 0x40
	alarmDate   = 0x3f
	alarmDay    = 0x0f
)

// Alarm — содержимое регистров одного будильника.
type Alarm struct {
	ID     AlarmID
	Rate   AlarmRate
	Second int // игнорируется для Alarm2
	Minute int
	Hour   int
	Day    int // число 1–31 для RateDate, день недели 1–7 для RateWeekday
}

// masks возвращает биты маски для секунд, минут, часов и дня (1 — не сравнивать).
func (a Alarm) masks() (sec, min, hour, day bool, err error) {
	switch a.Rate {
	case RateEvery:
		return true, true, true, true, nil
	case RateSecond:
		if a.ID == Alarm2 {
			return false, false, false, false, fmt.Errorf("%w: alarm 2 has no seconds", ErrInvalidAlarm)
		}
		return false, true, true, true, nil
	case RateMinute:
		return false, false, true, true, nil
	case RateHour:
		return false, false, false, true, nil
	case RateDate, RateWeekday:
		return false, false, false, false, nil
	}
	return false, false, false, false, fmt.Errorf("%w: rate %v", ErrInvalidAlarm, a.Rate)
}

func (a Alarm) validate() error {
	if !a.ID.valid() {
		return fmt.Errorf("%w: alarm id %d", ErrInvalidAlarm, a.ID)
	}
	switch {
	case a.Second < 0 || a.Second > 59:
		return fmt.Errorf("%w: second %d", ErrInvalidAlarm, a.Second)
	case a.Minute < 0 || a.Minute > 59:
		return fmt.Errorf("%w: minute %d", ErrInvalidAlarm, a.Minute)
	case a.Hour < 0 || a.Hour > 23:
		return fmt.Errorf("%w: hour %d", ErrInvalidAlarm, a.Hour)
	case a.Rate == RateDate && (a.Day < 1 || a.Day > 31):
		return fmt.Errorf("%w: date %d", ErrInvalidAlarm, a.Day)
	case a.Rate == RateWeekday && (a.Day < 1 || a.Day > 7):
		return fmt.Errorf("%w: weekday %d", ErrInvalidAlarm, a.Day)
	}
	return nil
}

func maskBit(set bool) byte {
	if set {
		return alarmMask
	}
	return 0
}

// EncodeAlarm возвращает байты регистров будильника: 4 для Alarm1, 3 для Alarm2.
// Часы всегда в 24-часовом формате.
func EncodeAlarm(a Alarm) ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	ms, mm, mh, md, err := a.masks()
	if err != nil {
		return nil, err
	}
	var day byte
	switch a.Rate {
	case RateWeekday:
		day = alarmDayFlg | byte(a.Day)
	case RateDate:
		day = bin2bcd(a.Day)
	default:
		day = bin2bcd(1)
	}
	regs := []byte{
		bin2bcd(a.Second) | maskBit(ms),
		bin2bcd(a.Minute) | maskBit(mm),
		bin2bcd(a.Hour) | maskBit(mh),
		day | maskBit(md),
	}
	if a.ID == Alarm2 {
		regs = regs[1:]
	}
	return regs, nil
}

// DecodeAlarm разбирает регистры будильника id.
func DecodeAlarm(id AlarmID, regs []byte) (Alarm, error) {
	if !id.valid() || len(regs) != id.size() {
		return Alarm{}, fmt.Errorf("%w: %d bytes for alarm %d", ErrInvalidAlarm, len(regs), id)
	}
	if id == Alarm2 {
		regs = append([]byte{0}, regs...)
	}
	a := Alarm{ID: id}
	var m [4]bool
	for i, b := range regs {
		m[i] = b&alarmMask != 0
	}
	if id == Alarm2 {
		m[0] = m[1]
	}
	switch m {
	case [4]bool{true, true, true, true}:
		a.Rate = RateEvery
	case [4]bool{false, true, true, true}:
		a.Rate = RateSecond
	case [4]bool{false, false, true, true}:
		a.Rate = RateMinute
	case [4]bool{false, false, false, true}:
		a.Rate = RateHour
	case [4]bool{false, false, false, false}:
		a.Rate = RateDate
		if regs[3]&alarmDayFlg != 0 {
			a.Rate = RateWeekday
		}
	default:
		return Alarm{}, fmt.Errorf("%w: mask bits %v", ErrInvalidAlarm, m)
	}
	if !validBCD(regs[0]&^alarmMask) || !validBCD(regs[1]&^alarmMask) ||
		!validBCD(regs[2]&^(alarmMask|flag12Hour|flagPM)) {
		return Alarm{}, fmt.Errorf("%w: bad bcd % x", ErrInvalidAlarm, regs)
	}
	if a.Rate == RateDate && !validBCD(regs[3]&alarmDate) {
		return Alarm{}, fmt.Errorf("%w: bad date bcd 0x%02x", ErrInvalidAlarm, regs[3])
	}
	a.Second = bcd2bin(regs[0] &^ alarmMask)
	a.Minute = bcd2bin(regs[1] &^ alarmMask)
	a.Hour = alarmHours(regs[2])
	switch a.Rate {
	case RateWeekday:
		a.Day = int(regs[3] & alarmDay)
	case RateDate:
		a.Day = bcd2bin(regs[3] & alarmDate)
	}
	if err := a.validate(); err != nil {
		return Alarm{}, err
	}
	return a, nil
}

func alarmHours(b byte) int {
	var r TimeRegs
	r[2] = b &^ alarmMask
	return r.Hours()
}

// Next возвращает ближайший момент после now (не включая now), когда сработает
// будильник с совпадением по числу месяца и времени.
func (a Alarm) Next(now time.Time) time.Time {
	now = now.UTC()
	y, m := now.Year(), now.Month()
	for i := 0; i < 48; i++ {
		if a.Day <= daysIn(m, y) {
			t := time.Date(y, m, a.Day, a.Hour, a.Minute, a.Second, 0, time.UTC)
			if t.After(now) {
				return t
			}
		}
		m++
		if m > time.December {
			m, y = time.January, y+1
		}
	}
	return time.Time{}
}
