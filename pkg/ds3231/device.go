package ds3231

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shiwa/jetson-ds3231/internal/driver"
	"github.com/shiwa/jetson-ds3231/internal/irq"
	"github.com/shiwa/jetson-ds3231/internal/regmap"
	"github.com/shiwa/jetson-ds3231/internal/rtc"
)

// DefaultSettleDelay — пауза после каждой транзакции на шине.
const DefaultSettleDelay = 100 * time.Microsecond

// Device — контекст привязанного чипа. Создаётся при probe и хранится как
// данные драйвера клиента.
type Device struct {
	client *driver.Client
	regs   *regmap.Map
	class  *rtc.Class
	rtc    *rtc.Device
	irq    int
	log    *zap.SugaredLogger

	settle time.Duration
	sleep  func(time.Duration)

	irqMu     sync.Mutex
	irqCancel context.CancelFunc
	irqDone   chan struct{}
}

var _ rtc.Ops = (*Device)(nil)

// Client возвращает I2C-клиента устройства.
func (d *Device) Client() *driver.Client { return d.client }

// RTC возвращает зарегистрированное RTC-устройство или nil.
func (d *Device) RTC() *rtc.Device { return d.rtc }

// Regmap возвращает карту регистров.
func (d *Device) Regmap() *regmap.Map { return d.regs }

func (d *Device) settleBus() { d.sleep(d.settle) }

// WriteRegister записывает один регистр. После транзакции всегда выдерживается
// пауза, в том числе при ошибке.
func (d *Device) WriteRegister(reg uint16, val byte) error {
	err := d.regs.Write(uint(reg), uint(val))
	d.settleBus()
	if err != nil {
		d.log.Errorf("i2c write failed, 0x%x = 0x%x: %v", reg, val, err)
		return fmt.Errorf("%w: write 0x%x: %w", ErrIO, reg, err)
	}
	return nil
}

// ReadRegister читает один регистр.
func (d *Device) ReadRegister(reg uint16) (byte, error) {
	v, err := d.regs.Read(uint(reg))
	d.settleBus()
	if err != nil {
		d.log.Errorf("i2c read failed, 0x%x: %v", reg, err)
		return 0, fmt.Errorf("%w: read 0x%x: %w", ErrIO, reg, err)
	}
	d.log.Debugf("i2c read data, 0x%x = 0x%x", reg, v)
	return byte(v), nil
}

// ReadRegisters читает len(buf) регистров подряд начиная с reg.
func (d *Device) ReadRegisters(reg uint16, buf []byte) error {
	err := d.regs.BulkRead(uint(reg), buf)
	d.settleBus()
	if err != nil {
		d.log.Errorf("i2c read failed, 0x%x+%d: %v", reg, len(buf), err)
		return fmt.Errorf("%w: read 0x%x+%d: %w", ErrIO, reg, len(buf), err)
	}
	return nil
}

// WriteRegisters записывает buf в регистры начиная с reg.
func (d *Device) WriteRegisters(reg uint16, buf []byte) error {
	err := d.regs.BulkWrite(uint(reg), buf)
	d.settleBus()
	if err != nil {
		d.log.Errorf("i2c write failed, 0x%x = % x: %v", reg, buf, err)
		return fmt.Errorf("%w: write 0x%x+%d: %w", ErrIO, reg, len(buf), err)
	}
	return nil
}

func (d *Device) updateBits(reg uint16, mask, val byte) error {
	_, err := d.regs.UpdateBits(uint(reg), uint(mask), uint(val))
	d.settleBus()
	if err != nil {
		d.log.Errorf("i2c update failed, 0x%x mask 0x%x: %v", reg, mask, err)
		return fmt.Errorf("%w: update 0x%x: %w", ErrIO, reg, err)
	}
	return nil
}

// Control читает регистр управления.
func (d *Device) Control() (Control, error) {
	v, err := d.ReadRegister(RegControl)
	return Control(v), err
}

// Status читает регистр состояния.
func (d *Device) Status() (Status, error) {
	v, err := d.ReadRegister(RegStatus)
	return Status(v), err
}

// SetSquareWave выбирает частоту меандра и переводит INT/SQW в режим меандра.
func (d *Device) SetSquareWave(s SquareWave) error {
	c := Control(0).WithSquareWave(s)
	return d.updateBits(RegControl, byte(ControlRS1|ControlRS2|ControlINTCN), byte(c))
}

// readTimeRegs читает блок 0x00–0x06.
func (d *Device) readTimeRegs() (TimeRegs, error) {
	var r TimeRegs
	err := d.ReadRegisters(RegSeconds, r[:])
	return r, err
}

// ReadTime читает текущее время. Если генератор останавливался, возвращает
// ErrInvalidTime до следующей установки времени.
func (d *Device) ReadTime() (time.Time, error) {
	st, err := d.Status()
	if err != nil {
		return time.Time{}, err
	}
	if st.Has(StatusOSF) {
		return time.Time{}, fmt.Errorf("%w: oscillator stopped", ErrInvalidTime)
	}
	r, err := d.readTimeRegs()
	if err != nil {
		return time.Time{}, err
	}
	return DecodeTime(r)
}

// SetTime записывает время и сбрасывает OSF.
func (d *Device) SetTime(t time.Time) error {
	r, err := EncodeTime(t)
	if err != nil {
		return err
	}
	if err := d.WriteRegisters(RegSeconds, r[:]); err != nil {
		return err
	}
	return d.updateBits(RegStatus, byte(StatusOSF), 0)
}

// ReadAlarmRegs читает и разбирает будильник id.
func (d *Device) ReadAlarmRegs(id AlarmID) (Alarm, error) {
	if !id.valid() {
		return Alarm{}, fmt.Errorf("%w: alarm id %d", ErrInvalidAlarm, id)
	}
	buf := make([]byte, id.size())
	if err := d.ReadRegisters(id.base(), buf); err != nil {
		return Alarm{}, err
	}
	return DecodeAlarm(id, buf)
}

// WriteAlarmRegs записывает будильник без изменения битов разрешения.
func (d *Device) WriteAlarmRegs(a Alarm) error {
	buf, err := EncodeAlarm(a)
	if err != nil {
		return err
	}
	return d.WriteRegisters(a.ID.base(), buf)
}

// ReadAlarm читает будильник 1 (rtc.Ops). Незаполненные после включения
// питания регистры дают будильник без времени.
func (d *Device) ReadAlarm() (rtc.WakeAlarm, error) {
	ctrl, err := d.Control()
	if err != nil {
		return rtc.WakeAlarm{}, err
	}
	st, err := d.Status()
	if err != nil {
		return rtc.WakeAlarm{}, err
	}
	w := rtc.WakeAlarm{Enabled: ctrl.Has(ControlA1IE), Pending: st.Has(StatusA1F)}
	a, err := d.ReadAlarmRegs(Alarm1)
	if errors.Is(err, ErrIO) {
		return rtc.WakeAlarm{}, err
	}
	if err != nil || a.Rate != RateDate {
		return w, nil
	}
	now, err := d.ReadTime()
	if errors.Is(err, ErrIO) {
		return rtc.WakeAlarm{}, err
	}
	if err != nil {
		return w, nil
	}
	w.Time = a.Next(now.Add(-time.Second))
	return w, nil
}

// SetAlarm программирует будильник 1 на совпадение числа, часов, минут и секунд.
func (d *Device) SetAlarm(w rtc.WakeAlarm) error {
	t := w.Time.UTC()
	a := Alarm{ID: Alarm1, Rate: RateDate, Second: t.Second(), Minute: t.Minute(), Hour: t.Hour(), Day: t.Day()}
	if err := d.updateBits(RegControl, byte(ControlA1IE), 0); err != nil {
		return err
	}
	if err := d.updateBits(RegStatus, byte(StatusA1F), 0); err != nil {
		return err
	}
	if err := d.WriteAlarmRegs(a); err != nil {
		return err
	}
	if !w.Enabled {
		return nil
	}
	return d.AlarmIRQEnable(true)
}

// AlarmIRQEnable включает или выключает прерывание будильника 1.
func (d *Device) AlarmIRQEnable(enabled bool) error {
	if !enabled {
		return d.updateBits(RegControl, byte(ControlA1IE), 0)
	}
	bits := byte(ControlINTCN | ControlA1IE)
	return d.updateBits(RegControl, bits, bits)
}

// Temperature возвращает последнюю измеренную температуру в °C с шагом 0.25.
func (d *Device) Temperature() (float64, error) {
	var buf [2]byte
	if err := d.ReadRegisters(RegTempMSB, buf[:]); err != nil {
		return 0, err
	}
	return decodeTemperature(buf[0], buf[1]), nil
}

func decodeTemperature(msb, lsb byte) float64 {
	v := int16(uint16(msb)<<8|uint16(lsb)) >> 6
	return float64(v) / 4
}

// ConvertTemperature запускает внеочередное измерение температуры.
func (d *Device) ConvertTemperature() error {
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st.Has(StatusBSY) {
		return ErrBusy
	}
	err = d.updateBits(RegControl, byte(ControlCONV), byte(ControlCONV))
	// CONV сбрасывает сам чип, кэшированное значение устаревает.
	d.regs.Invalidate()
	return err
}

// AgingOffset читает регистр подстройки частоты (дополнительный код).
func (d *Device) AgingOffset() (int8, error) {
	v, err := d.ReadRegister(RegAgingOffset)
	return int8(v), err
}

// SetAgingOffset записывает регистр подстройки частоты.
func (d *Device) SetAgingOffset(v int8) error {
	return d.WriteRegister(RegAgingOffset, byte(v))
}

// initValues — начальные значения регистров времени для Initialize.
var initValues = []struct {
	reg uint16
	val byte
}{
	{RegSeconds, 0x04},
	{RegMinutes, 0x03},
	{RegHours, 0x02},
	{RegDay, 0x07},
}

// Initialize записывает начальные значения секунд, минут, часов и дня недели
// и читает их обратно в журнал. Ошибки отдельных записей только журналируются.
func (d *Device) Initialize() {
	for _, iv := range initValues {
		_ = d.WriteRegister(iv.reg, iv.val)
	}
	for _, iv := range initValues {
		_, _ = d.ReadRegister(iv.reg)
	}
}

// HandleIRQ обслуживает прерывание INT/SQW: сбрасывает флаги будильников,
// снимает разрешение будильника 1 (он одноразовый) и сообщает событие.
func (d *Device) HandleIRQ() error {
	st, err := d.Status()
	if err != nil {
		return err
	}
	fired := st & (StatusA1F | StatusA2F)
	if fired == 0 {
		return nil
	}
	if err := d.updateBits(RegStatus, byte(fired), 0); err != nil {
		return err
	}
	if fired.Has(StatusA1F) {
		if err := d.AlarmIRQEnable(false); err != nil {
			return err
		}
	}
	if d.rtc != nil {
		d.rtc.UpdateIRQ(1, rtc.FlagAlarm)
	}
	d.log.Infof("alarm interrupt, status 0x%02x", byte(st))
	return nil
}

// StartIRQ запускает обслуживание прерываний с линии line.
func (d *Device) StartIRQ(line irq.Line) {
	d.irqMu.Lock()
	defer d.irqMu.Unlock()
	if d.irqCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.irqCancel, d.irqDone = cancel, done
	go func() {
		defer close(done)
		_ = irq.Run(ctx, line, d.HandleIRQ, func(err error) {
			d.log.Errorf("irq %d: %v", d.irq, err)
		})
	}()
}

// StopIRQ останавливает обслуживание прерываний и ждёт завершения.
func (d *Device) StopIRQ() {
	d.irqMu.Lock()
	cancel, done := d.irqCancel, d.irqDone
	d.irqCancel, d.irqDone = nil, nil
	d.irqMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
