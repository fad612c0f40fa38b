package ds3231

import (
	"fmt"
	"time"
)

// Маски полей регистров времени.
const (
	maskSeconds = 0x7f
	maskMinutes = 0x7f
	maskHours24 = 0x3f
	maskHours12 = 0x1f
	flag12Hour  = 0x40
	flagPM      = 0x20
	maskWeekday = 0x07
	maskDate    = 0x3f
	maskMonth   = 0x1f
	flagCentury = 0x80
)

const baseYear = 2000

// bcd2bin переводит двоично-десятичный байт в число.
func bcd2bin(b byte) int { return int(b>>4)*10 + int(b&0x0f) }

// bin2bcd переводит число 0–99 в двоично-десятичный байт.
func bin2bcd(v int) byte { return byte(v/10)<<4 | byte(v%10) }

func validBCD(b byte) bool { return b>>4 <= 9 && b&0x0f <= 9 }

// TimeRegs — блок регистров 0x00–0x06 в порядке адресов.
type TimeRegs [7]byte

// Seconds возвращает секунды (бит 7 маскируется).
func (r TimeRegs) Seconds() int { return bcd2bin(r[0] & maskSeconds) }

// Minutes возвращает минуты.
func (r TimeRegs) Minutes() int { return bcd2bin(r[1] & maskMinutes) }

// Is12Hour сообщает, что часы хранятся в 12-часовом формате.
func (r TimeRegs) Is12Hour() bool { return r[2]&flag12Hour != 0 }

// PM — бит AM/PM; имеет смысл только в 12-часовом формате.
func (r TimeRegs) PM() bool { return r.Is12Hour() && r[2]&flagPM != 0 }

// Hours возвращает часы 0–23 независимо от формата хранения.
func (r TimeRegs) Hours() int {
	if !r.Is12Hour() {
		return bcd2bin(r[2] & maskHours24)
	}
	h := bcd2bin(r[2]&maskHours12) % 12
	if r.PM() {
		h += 12
	}
	return h
}

// Weekday возвращает день недели 1–7 (1 — воскресенье).
func (r TimeRegs) Weekday() int { return int(r[3] & maskWeekday) }

// Date возвращает число месяца.
func (r TimeRegs) Date() int { return bcd2bin(r[4] & maskDate) }

// Month возвращает месяц (бит века маскируется).
func (r TimeRegs) Month() int { return bcd2bin(r[5] & maskMonth) }

// Century — бит века в регистре месяца.
func (r TimeRegs) Century() bool { return r[5]&flagCentury != 0 }

// Year возвращает год 2000–2099.
func (r TimeRegs) Year() int { return baseYear + bcd2bin(r[6]) }

// SetSeconds, SetMinutes, SetHours, SetWeekday, SetDate, SetMonth и SetYear
// записывают поле, сохраняя управляющие биты регистра.
func (r *TimeRegs) SetSeconds(v int) { r[0] = r[0]&^maskSeconds | bin2bcd(v) }
func (r *TimeRegs) SetMinutes(v int) { r[1] = r[1]&^maskMinutes | bin2bcd(v) }

// SetHours записывает часы в 24-часовом формате.
func (r *TimeRegs) SetHours(v int) { r[2] = bin2bcd(v) & maskHours24 }

func (r *TimeRegs) SetWeekday(v int) { r[3] = r[3]&^maskWeekday | byte(v)&maskWeekday }
func (r *TimeRegs) SetDate(v int)    { r[4] = r[4]&^maskDate | bin2bcd(v) }
func (r *TimeRegs) SetMonth(v int)   { r[5] = r[5]&^maskMonth | bin2bcd(v) }
func (r *TimeRegs) SetYear(v int)    { r[6] = bin2bcd(v - baseYear) }

// Masked возвращает копию без управляющих и зарезервированных битов.
// Часы в 12-часовом формате остаются как есть.
func (r TimeRegs) Masked() TimeRegs {
	m := r
	m[0] &= maskSeconds
	m[1] &= maskMinutes
	if !r.Is12Hour() {
		m[2] &= maskHours24
	}
	m[3] &= maskWeekday
	m[4] &= maskDate
	m[5] &= maskMonth
	return m
}

func (r TimeRegs) validBCD() bool {
	m := r.Masked()
	if r.Is12Hour() {
		m[2] = r[2] & maskHours12
	}
	for _, b := range m {
		if !validBCD(b) {
			return false
		}
	}
	return true
}

// DecodeTime переводит регистры времени в time.Time (UTC).
// Бит 12/24 и бит века маскируются до декодирования.
func DecodeTime(r TimeRegs) (time.Time, error) {
	if !r.validBCD() {
		return time.Time{}, fmt.Errorf("%w: bad bcd % x", ErrInvalidTime, r[:])
	}
	sec, min, hour := r.Seconds(), r.Minutes(), r.Hours()
	date, month, year := r.Date(), r.Month(), r.Year()
	if r.Is12Hour() {
		if h := bcd2bin(r[2] & maskHours12); h < 1 || h > 12 {
			return time.Time{}, fmt.Errorf("%w: hour %d in 12h mode", ErrInvalidTime, h)
		}
	}
	switch {
	case sec > 59:
		return time.Time{}, fmt.Errorf("%w: seconds %d", ErrInvalidTime, sec)
	case min > 59:
		return time.Time{}, fmt.Errorf("%w: minutes %d", ErrInvalidTime, min)
	case hour > 23:
		return time.Time{}, fmt.Errorf("%w: hours %d", ErrInvalidTime, hour)
	case month < 1 || month > 12:
		return time.Time{}, fmt.Errorf("%w: month %d", ErrInvalidTime, month)
	case date < 1 || date > daysIn(time.Month(month), year):
		return time.Time{}, fmt.Errorf("%w: date %d", ErrInvalidTime, date)
	}
	return time.Date(year, time.Month(month), date, hour, min, sec, 0, time.UTC), nil
}

// EncodeTime переводит время в регистры: 24-часовой формат, бит века сброшен,
// день недели 1–7 (воскресенье — 1). Время приводится к UTC и отбрасывает
// доли секунды.
func EncodeTime(t time.Time) (TimeRegs, error) {
	t = t.UTC()
	if t.Year() < baseYear || t.Year() > baseYear+99 {
		return TimeRegs{}, fmt.Errorf("%w: %d", ErrYearOutOfRange, t.Year())
	}
	var r TimeRegs
	r.SetSeconds(t.Second())
	r.SetMinutes(t.Minute())
	r.SetHours(t.Hour())
	r.SetWeekday(weekday(t))
	r.SetDate(t.Day())
	r.SetMonth(int(t.Month()))
	r.SetYear(t.Year())
	return r, nil
}

// weekday — день недели в нумерации чипа.
func weekday(t time.Time) int { return int(t.Weekday()) + 1 }

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
