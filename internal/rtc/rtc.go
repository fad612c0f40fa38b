// Package rtc — класс устройств часов реального времени: таблица обратных
// вызовов драйвера, выдача имён rtcN, проверка времени и будильника, доставка
// событий прерывания.
package rtc

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// MaxDevices — размер пула идентификаторов rtcN.
const MaxDevices = 16

var (
	// ErrNoMemory — пул идентификаторов исчерпан.
	ErrNoMemory = fmt.Errorf("rtc: cannot allocate device id: %w", unix.ENOMEM)
	// ErrInvalid — недопустимое время или будильник.
	ErrInvalid = fmt.Errorf("rtc: invalid time: %w", unix.EINVAL)
	// ErrAlarmInPast — включаемый будильник не в будущем.
	ErrAlarmInPast = fmt.Errorf("rtc: alarm time is not in the future: %w", unix.ETIME)
	// ErrGone — устройство уже снято с регистрации.
	ErrGone = fmt.Errorf("rtc: device unregistered: %w", unix.ENODEV)
)

// Флаги событий (как RTC_IRQF / RTC_AF / RTC_UF в linux/rtc.h).
const (
	FlagUpdate uint = 0x10
	FlagAlarm  uint = 0x20
	FlagIRQ    uint = 0x80
)

// WakeAlarm — будильник устройства (struct rtc_wkalrm).
type WakeAlarm struct {
	Enabled bool      `json:"enabled"`
	Pending bool      `json:"pending"`
	Time    time.Time `json:"time"`
}

// Ops — обратные вызовы драйвера.
type Ops interface {
	ReadTime() (time.Time, error)
	SetTime(t time.Time) error
	ReadAlarm() (WakeAlarm, error)
	SetAlarm(a WakeAlarm) error
	AlarmIRQEnable(enabled bool) error
}

// Event — событие прерывания.
type Event struct {
	Device string
	Count  int
	Flags  uint
	At     time.Time
}

// Device — зарегистрированное RTC-устройство.
type Device struct {
	id     int
	parent string
	ops    Ops
	class  *Class

	mu     sync.Mutex // сериализует обращения к ops
	events chan Event
	gone   bool
}

// Name возвращает имя устройства, например "rtc0".
func (d *Device) Name() string { return fmt.Sprintf("rtc%d", d.id) }

// Parent возвращает имя родительского устройства (I2C-клиента).
func (d *Device) Parent() string { return d.parent }

// Events возвращает канал событий прерываний; закрывается при Unregister.
func (d *Device) Events() <-chan Event { return d.events }

// ReadTime читает время и проверяет его корректность.
func (d *Device) ReadTime() (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone {
		return time.Time{}, ErrGone
	}
	t, err := d.ops.ReadTime()
	if err != nil {
		return time.Time{}, err
	}
	if t.IsZero() {
		return time.Time{}, ErrInvalid
	}
	return t.UTC(), nil
}

// SetTime устанавливает время (с точностью до секунды, UTC).
func (d *Device) SetTime(t time.Time) error {
	if t.IsZero() {
		return ErrInvalid
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone {
		return ErrGone
	}
	return d.ops.SetTime(t.UTC().Truncate(time.Second))
}

// ReadAlarm читает будильник.
func (d *Device) ReadAlarm() (WakeAlarm, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone {
		return WakeAlarm{}, ErrGone
	}
	return d.ops.ReadAlarm()
}

// SetAlarm программирует будильник. Включаемый будильник должен быть позже
// текущего времени устройства.
func (d *Device) SetAlarm(a WakeAlarm) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone {
		return ErrGone
	}
	if a.Time.IsZero() {
		return ErrInvalid
	}
	a.Time = a.Time.UTC().Truncate(time.Second)
	if a.Enabled {
		now, err := d.ops.ReadTime()
		if err != nil {
			return err
		}
		if !a.Time.After(now) {
			return ErrAlarmInPast
		}
	}
	return d.ops.SetAlarm(a)
}

// AlarmIRQEnable включает или выключает прерывание будильника.
func (d *Device) AlarmIRQEnable(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone {
		return ErrGone
	}
	return d.ops.AlarmIRQEnable(enabled)
}

// UpdateIRQ вызывается драйвером из обработчика прерывания. Событие
// отбрасывается, если читатель не успевает.
func (d *Device) UpdateIRQ(count int, flags uint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone {
		return
	}
	select {
	case d.events <- Event{Device: d.Name(), Count: count, Flags: flags | FlagIRQ, At: time.Now()}:
	default:
	}
}

// Class — реестр RTC-устройств.
type Class struct {
	mu      sync.Mutex
	devices map[int]*Device
}

// NewClass создаёт пустой реестр.
func NewClass() *Class {
	return &Class{devices: make(map[int]*Device)}
}

// Register регистрирует устройство под наименьшим свободным номером.
func (c *Class) Register(parent string, ops Ops) (*Device, error) {
	if ops == nil {
		return nil, errors.New("rtc: nil ops")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := 0; id < MaxDevices; id++ {
		if _, used := c.devices[id]; used {
			continue
		}
		d := &Device{id: id, parent: parent, ops: ops, class: c, events: make(chan Event, 8)}
		c.devices[id] = d
		return d, nil
	}
	return nil, ErrNoMemory
}

// Unregister снимает устройство с регистрации; повторный вызов безопасен.
func (c *Class) Unregister(d *Device) {
	if d == nil {
		return
	}
	c.mu.Lock()
	if c.devices[d.id] == d {
		delete(c.devices, d.id)
	}
	c.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.gone {
		d.gone = true
		close(d.events)
	}
}

// Lookup ищет устройство по имени ("rtc0").
func (c *Class) Lookup(name string) (*Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.devices {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// Devices возвращает устройства в порядке номеров.
func (c *Class) Devices() []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
