// Package ds3231 — драйвер часов реального времени Maxim DS3231 на шине I2C:
// карта регистров, BCD-кодек времени и будильников, probe/remove для
// driver.Core и обратные вызовы класса rtc.
package ds3231

// Адреса регистров DS3231.
const (
	RegSeconds      uint16 = 0x00
	RegMinutes      uint16 = 0x01
	RegHours        uint16 = 0x02
	RegDay          uint16 = 0x03 // день недели 1–7
	RegDate         uint16 = 0x04
	RegMonthCentury uint16 = 0x05
	RegYear         uint16 = 0x06

	RegAlarm1Seconds uint16 = 0x07
	RegAlarm1Minutes uint16 = 0x08
	RegAlarm1Hours   uint16 = 0x09
	RegAlarm1DayDate uint16 = 0x0A
	RegAlarm2Minutes uint16 = 0x0B
	RegAlarm2Hours   uint16 = 0x0C
	RegAlarm2DayDate uint16 = 0x0D

	RegControl     uint16 = 0x0E
	RegStatus      uint16 = 0x0F
	RegAgingOffset uint16 = 0x10
	RegTempMSB     uint16 = 0x11
	RegTempLSB     uint16 = 0x12

	MaxRegister = RegTempLSB
)

// DefaultAddress — I2C-адрес DS3231.
const DefaultAddress = 0x68

// volatileRegister сообщает, какие регистры меняет сам чип.
func volatileRegister(reg uint) bool {
	switch {
	case reg <= uint(RegYear):
		return true
	case reg == uint(RegStatus), reg == uint(RegTempMSB), reg == uint(RegTempLSB):
		return true
	}
	return false
}

// Control — регистр управления 0x0E.
type Control uint8

const (
	ControlA1IE  Control = 1 << 0 // прерывание будильника 1
	ControlA2IE  Control = 1 << 1 // прерывание будильника 2
	ControlINTCN Control = 1 << 2 // 1: вывод INT/SQW — прерывания, 0: меандр
	ControlRS1   Control = 1 << 3
	ControlRS2   Control = 1 << 4
	ControlCONV  Control = 1 << 5 // запуск преобразования температуры
	ControlBBSQW Control = 1 << 6 // меандр от батареи
	ControlEOSC  Control = 1 << 7 // 1: генератор остановлен при питании от батареи
)

// Has сообщает, установлены ли все биты bits.
func (c Control) Has(bits Control) bool { return c&bits == bits }

// SquareWave — частота меандра на выводе INT/SQW.
type SquareWave uint8

const (
	SquareWave1Hz SquareWave = iota
	SquareWave1024Hz
	SquareWave4096Hz
	SquareWave8192Hz
)

// SquareWave возвращает частоту, выбранную битами RS2:RS1.
func (c Control) SquareWave() SquareWave { return SquareWave(c>>3) & 0x3 }

// WithSquareWave возвращает регистр с новыми битами RS2:RS1.
func (c Control) WithSquareWave(s SquareWave) Control {
	return c&^(ControlRS1|ControlRS2) | Control(s&0x3)<<3
}

func (s SquareWave) String() string {
	switch s {
	case SquareWave1Hz:
		return "1Hz"
	case SquareWave1024Hz:
		return "1.024kHz"
	case SquareWave4096Hz:
		return "4.096kHz"
	default:
		return "8.192kHz"
	}
}

// Status — регистр состояния 0x0F.
type Status uint8

const (
	StatusA1F     Status = 1 << 0 // сработал будильник 1
	StatusA2F     Status = 1 << 1 // сработал будильник 2
	StatusBSY     Status = 1 << 2 // идёт преобразование температуры
	StatusEN32kHz Status = 1 << 3
	StatusOSF     Status = 1 << 7 // генератор останавливался, время недостоверно
)

// Has сообщает, установлены ли все биты bits.
func (s Status) Has(bits Status) bool { return s&bits == bits }
