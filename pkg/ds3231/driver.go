package ds3231

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shiwa/jetson-ds3231/internal/driver"
	"github.com/shiwa/jetson-ds3231/internal/irq"
	"github.com/shiwa/jetson-ds3231/internal/logger"
	"github.com/shiwa/jetson-ds3231/internal/regmap"
	"github.com/shiwa/jetson-ds3231/internal/rtc"
)

// Имена для таблиц совпадения.
const (
	DriverName = "ds3231"
	Compatible = "maxim,ds3231"
)

// Options — параметры привязки драйвера.
type Options struct {
	// RegBits — ширина адреса регистра на шине, 8 или 16 (0 — 8).
	RegBits int
	// SettleDelay — пауза после каждой транзакции (0 — DefaultSettleDelay).
	SettleDelay time.Duration
	// Sleep выполняет паузу; nil — time.Sleep.
	Sleep func(time.Duration)
	// RequireOF отклоняет устройства без узла device tree.
	RequireOF bool
	// Initialize записывает начальные значения времени при probe.
	Initialize bool
	// Class — реестр RTC; nil — устройство не регистрируется как rtcN.
	Class *rtc.Class
	// OpenIRQ открывает линию прерывания клиента с IRQ > 0; nil — без прерываний.
	OpenIRQ func(c *driver.Client) (irq.Line, error)
	// Logger — nil означает logger.Named("ds3231").
	Logger *zap.SugaredLogger
}

// NewDriver возвращает драйвер DS3231 для driver.Core.
func NewDriver(opts Options) *driver.Driver {
	if opts.RegBits == 0 {
		opts.RegBits = 8
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named(DriverName)
	}
	return &driver.Driver{
		Name:         DriverName,
		OFMatchTable: []string{Compatible},
		IDTable:      []driver.ID{{Name: DriverName}},
		Probe:        opts.probe,
		Remove:       remove,
	}
}

// FromClient возвращает контекст устройства, привязанный к клиенту, или nil.
func FromClient(c *driver.Client) *Device {
	if c == nil {
		return nil
	}
	d, _ := c.DriverData().(*Device)
	return d
}

func (o Options) probe(c *driver.Client, id *driver.ID) error {
	log := o.Logger.With("client", c.String())
	log.Infof("probing real time clock")

	if o.RequireOF && !c.Info.HasOFNode() {
		log.Errorf("no device tree node")
		return fmt.Errorf("%w: %s has no device tree node", ErrNoDevice, c)
	}
	regs, err := regmap.New(c, regmap.Config{
		RegBits:     o.RegBits,
		ValBits:     8,
		MaxRegister: uint(MaxRegister),
		CacheType:   regmap.CacheFlat,
		Volatile:    volatileRegister,
	})
	if err != nil {
		log.Errorf("regmap init failed: %v", err)
		return fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	d := &Device{
		client: c,
		regs:   regs,
		class:  o.Class,
		irq:    c.Info.IRQ,
		log:    log,
		settle: o.SettleDelay,
		sleep:  o.Sleep,
	}
	c.SetDriverData(d)

	if o.Initialize {
		d.Initialize()
	}
	if err := d.enableOscillator(); err != nil {
		return err
	}
	if o.Class != nil {
		rd, err := o.Class.Register(c.String(), d)
		if err != nil {
			log.Errorf("rtc register failed: %v", err)
			return err
		}
		d.rtc = rd
		log.Infof("registered as %s", rd.Name())
	}
	if d.irq > 0 && o.OpenIRQ != nil {
		line, err := o.OpenIRQ(c)
		if err != nil {
			log.Errorf("irq %d unavailable, alarms disabled: %v", d.irq, err)
		} else {
			d.StartIRQ(line)
		}
	}
	log.Infof("probe success")
	return nil
}

// enableOscillator сбрасывает EOSC; при наличии прерывания переводит INT/SQW
// в режим прерываний.
func (d *Device) enableOscillator() error {
	mask, val := ControlEOSC, Control(0)
	if d.irq > 0 {
		mask |= ControlINTCN
		val |= ControlINTCN
	}
	return d.updateBits(RegControl, byte(mask), byte(val))
}

func remove(c *driver.Client) error {
	if c == nil {
		return nil
	}
	if d := FromClient(c); d != nil {
		d.StopIRQ()
		if d.class != nil && d.rtc != nil {
			d.class.Unregister(d.rtc)
		}
		d.log.Infof("removed")
	}
	c.SetDriverData(nil)
	return c.Close()
}
