package ds3231

import (
	"time"

	"github.com/shiwa/jetson-ds3231/internal/clockadj"
	"github.com/shiwa/jetson-ds3231/internal/driver"
	"github.com/shiwa/jetson-ds3231/internal/rtc"
)

// Snapshot — состояние чипа для API, консоли и телеметрии.
type Snapshot struct {
	Name              string         `json:"name"`
	Client            string         `json:"client"`
	Time              *time.Time     `json:"time,omitempty"`
	SystemOffsetMs    *float64       `json:"system_offset_ms,omitempty"`
	TemperatureC      *float64       `json:"temperature_c,omitempty"`
	AgingOffset       *int8          `json:"aging_offset,omitempty"`
	Alarm             *rtc.WakeAlarm `json:"alarm,omitempty"`
	Control           uint8          `json:"control"`
	Status            uint8          `json:"status"`
	OscillatorStopped bool           `json:"oscillator_stopped"`
	Errors            []string       `json:"errors,omitempty"`
}

// Name возвращает имя rtcN, а без регистрации — имя клиента.
func (d *Device) Name() string {
	if d.rtc != nil {
		return d.rtc.Name()
	}
	return d.client.String()
}

// Clock возвращает обратные вызовы через RTC-устройство (под его блокировкой),
// а без регистрации — сам Device.
func (d *Device) Clock() rtc.Ops {
	if d.rtc != nil {
		return d.rtc
	}
	return d
}

// Snapshot опрашивает чип. Ошибки отдельных чтений попадают в Errors.
func (d *Device) Snapshot() Snapshot {
	s := Snapshot{Name: d.Name(), Client: d.client.String()}
	fail := func(err error) { s.Errors = append(s.Errors, err.Error()) }

	if ctrl, err := d.Control(); err != nil {
		fail(err)
	} else {
		s.Control = uint8(ctrl)
	}
	if st, err := d.Status(); err != nil {
		fail(err)
	} else {
		s.Status = uint8(st)
		s.OscillatorStopped = st.Has(StatusOSF)
	}
	if t, err := d.Clock().ReadTime(); err != nil {
		fail(err)
	} else {
		s.Time = &t
		if off, err := clockadj.Offset(t); err == nil {
			ms := float64(off) / float64(time.Millisecond)
			s.SystemOffsetMs = &ms
		}
	}
	if temp, err := d.Temperature(); err != nil {
		fail(err)
	} else {
		s.TemperatureC = &temp
	}
	if aging, err := d.AgingOffset(); err != nil {
		fail(err)
	} else {
		s.AgingOffset = &aging
	}
	if w, err := d.Clock().ReadAlarm(); err != nil {
		fail(err)
	} else {
		s.Alarm = &w
	}
	return s
}

// Bound возвращает устройства DS3231, привязанные к клиентам core.
func Bound(core *driver.Core) []*Device {
	var out []*Device
	for _, c := range core.Clients() {
		if d := FromClient(c); d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Find ищет устройство по имени rtcN или имени клиента.
func Find(devs []*Device, name string) (*Device, bool) {
	for _, d := range devs {
		if d.Name() == name || d.client.String() == name {
			return d, true
		}
	}
	return nil, false
}

// SetTimeFromSystem записывает в чип системное время.
func (d *Device) SetTimeFromSystem(now time.Time) error {
	if d.rtc != nil {
		return rtc.SysToHC(d.rtc, now)
	}
	now = now.UTC()
	if now.Nanosecond() >= 5e8 {
		now = now.Add(time.Second)
	}
	return d.SetTime(now.Truncate(time.Second))
}
