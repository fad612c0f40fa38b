package ds3231

import (
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"golang.org/x/sys/unix"
)

func TestDecodeSecondsMasksControlBit(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		reg  byte
		want int
	}{
		{0x59, 59},
		{0x00, 0},
		{0xd9, 59}, // бит 7 не относится к секундам
		{0x80, 0},
		{0x30, 30},
	}
	for _, tt := range tests {
		r := TimeRegs{tt.reg, 0x00, 0x00, 0x01, 0x01, 0x01, 0x00}
		c.Assert(r.Seconds(), qt.Equals, tt.want, qt.Commentf("reg 0x%02x", tt.reg))
		got, err := DecodeTime(r)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Second(), qt.Equals, tt.want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := qt.New(t)
	n := 0
	for year := 2000; year <= 2099; year += 3 {
		for month := time.January; month <= time.December; month++ {
			for _, day := range []int{1, 15, daysIn(month, year)} {
				for hour := 0; hour < 24; hour += 5 {
					min, sec := (hour*7+day)%60, (year+int(month)*11)%60
					want := time.Date(year, month, day, hour, min, sec, 0, time.UTC)
					r, err := EncodeTime(want)
					c.Assert(err, qt.IsNil)
					got, err := DecodeTime(r)
					c.Assert(err, qt.IsNil)
					c.Assert(got.Equal(want), qt.IsTrue, qt.Commentf("%v -> % x -> %v", want, r[:], got))
					c.Assert(r.Weekday(), qt.Equals, int(want.Weekday())+1)
					n++
				}
			}
		}
	}
	c.Assert(n > 0, qt.IsTrue)
}

func TestDecodeEncodeRoundTripRegisters(t *testing.T) {
	c := qt.New(t)
	// 2024-02-29 23:59:58, четверг.
	r := TimeRegs{0x58, 0x59, 0x23, 0x05, 0x29, 0x02, 0x24}
	tm, err := DecodeTime(r)
	c.Assert(err, qt.IsNil)
	back, err := EncodeTime(tm)
	c.Assert(err, qt.IsNil)
	c.Assert(back, qt.Equals, r)
}

func TestEncodeTruncatesAndConvertsToUTC(t *testing.T) {
	c := qt.New(t)
	loc := time.FixedZone("MSK", 3*3600)
	r, err := EncodeTime(time.Date(2023, 6, 1, 2, 30, 15, 900e6, loc))
	c.Assert(err, qt.IsNil)
	got, err := DecodeTime(r)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, time.Date(2023, 5, 31, 23, 30, 15, 0, time.UTC))
	c.Assert(r.Century(), qt.IsFalse)
	c.Assert(r.Is12Hour(), qt.IsFalse)
}

func TestDecode12Hour(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		reg  byte
		want int
	}{
		{flag12Hour | 0x12, 0},           // 12 AM
		{flag12Hour | flagPM | 0x12, 12}, // 12 PM
		{flag12Hour | 0x01, 1},
		{flag12Hour | flagPM | 0x01, 13},
		{flag12Hour | flagPM | 0x11, 23},
	}
	for _, tt := range tests {
		r := TimeRegs{0x00, 0x00, tt.reg, 0x01, 0x01, 0x01, 0x00}
		got, err := DecodeTime(r)
		c.Assert(err, qt.IsNil, qt.Commentf("hours 0x%02x", tt.reg))
		c.Assert(got.Hour(), qt.Equals, tt.want, qt.Commentf("hours 0x%02x", tt.reg))
	}
}

func TestDecodeIgnoresCenturyBit(t *testing.T) {
	c := qt.New(t)
	r := TimeRegs{0x00, 0x00, 0x00, 0x01, 0x01, 0x01 | flagCentury, 0x99}
	got, err := DecodeTime(r)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Year(), qt.Equals, 2099)
	c.Assert(got.Month(), qt.Equals, time.January)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		regs TimeRegs
	}{
		{"bad bcd seconds", TimeRegs{0x5a, 0x00, 0x00, 0x01, 0x01, 0x01, 0x00}},
		{"seconds 60", TimeRegs{0x60, 0x00, 0x00, 0x01, 0x01, 0x01, 0x00}},
		{"hours 24", TimeRegs{0x00, 0x00, 0x24, 0x01, 0x01, 0x01, 0x00}},
		{"12h hour 0", TimeRegs{0x00, 0x00, flag12Hour, 0x01, 0x01, 0x01, 0x00}},
		{"month 0", TimeRegs{0x00, 0x00, 0x00, 0x01, 0x01, 0x00, 0x00}},
		{"month 13", TimeRegs{0x00, 0x00, 0x00, 0x01, 0x01, 0x13, 0x00}},
		{"feb 30", TimeRegs{0x00, 0x00, 0x00, 0x01, 0x30, 0x02, 0x24}},
		{"feb 29 non-leap", TimeRegs{0x00, 0x00, 0x00, 0x01, 0x29, 0x02, 0x23}},
		{"date 0", TimeRegs{0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTime(tt.regs)
			if !errors.Is(err, ErrInvalidTime) {
				t.Fatalf("DecodeTime(% x) = %v, want ErrInvalidTime", tt.regs[:], err)
			}
			if !errors.Is(err, unix.EINVAL) {
				t.Fatalf("error %v does not carry EINVAL", err)
			}
		})
	}
}

func TestEncodeYearOutOfRange(t *testing.T) {
	c := qt.New(t)
	for _, y := range []int{1999, 2100, 1970} {
		_, err := EncodeTime(time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC))
		c.Assert(errors.Is(err, ErrYearOutOfRange), qt.IsTrue, qt.Commentf("year %d", y))
	}
}
