// Package i2cbus — I2C-адаптеры для драйверов: periph.io (i2creg), devfs из
// golang.org/x/exp/io/i2c и программная шина sim для запуска без железа.
package i2cbus

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	expi2c "golang.org/x/exp/io/i2c"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/shiwa/jetson-ds3231/internal/driver"
	"github.com/shiwa/jetson-ds3231/internal/logger"
)

// Проверка на этапе компиляции: адаптеры реализуют driver.Adapter.
var (
	_ driver.Adapter = (*Periph)(nil)
	_ driver.Adapter = (*Devfs)(nil)
	_ driver.Adapter = (*Sim)(nil)
)

// Backend — имя реализации адаптера в конфиге.
const (
	BackendPeriph = "periph"
	BackendDevfs  = "devfs"
	BackendSim    = "sim"
)

// Open открывает шину name ("1", "/dev/i2c-1", "I2C1") выбранным бэкендом.
func Open(backend, name string) (driver.Adapter, error) {
	switch backend {
	case "", BackendPeriph:
		return OpenPeriph(name)
	case BackendDevfs:
		return OpenDevfs(name), nil
	case BackendSim:
		return NewSim(name), nil
	default:
		return nil, fmt.Errorf("i2cbus: unknown backend %q", backend)
	}
}

// DevicePath приводит имя шины к пути /dev/i2c-N.
func DevicePath(name string) string {
	switch {
	case name == "":
		return "/dev/i2c-1"
	case strings.HasPrefix(name, "/"):
		return name
	case strings.HasPrefix(name, "i2c-"):
		return "/dev/" + name
	case strings.HasPrefix(strings.ToUpper(name), "I2C"):
		return "/dev/i2c-" + name[3:]
	default:
		return "/dev/i2c-" + name
	}
}

// Periph — адаптер поверх periph.io i2c.BusCloser.
type Periph struct {
	name string
	bus  i2c.BusCloser
}

var hostInit sync.Once

// OpenPeriph инициализирует драйверы хоста periph и открывает шину через i2creg.
func OpenPeriph(name string) (*Periph, error) {
	hostInit.Do(func() {
		if _, err := host.Init(); err != nil {
			logger.Info("periph host.Init: %v", err)
		}
	})
	// periph регистрирует шину как /dev/i2c-N, I2CN и N; имя из device tree
	// (i2c-N) приводится к пути устройства.
	ref := name
	if ref != "" {
		ref = DevicePath(name)
	}
	bus, err := i2creg.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("i2creg.Open %s: %w", name, err)
	}
	return &Periph{name: name, bus: bus}, nil
}

// Tx выполняет транзакцию write-then-read по адресу addr.
func (p *Periph) Tx(addr uint16, w, r []byte) error {
	return p.bus.Tx(addr, w, r)
}

// Close закрывает шину.
func (p *Periph) Close() error { return p.bus.Close() }

func (p *Periph) String() string { return p.bus.String() }

// Devfs — адаптер поверх golang.org/x/exp/io/i2c (ioctl I2C_SLAVE на /dev/i2c-N).
// Соединение на каждый адрес открывается лениво и живёт до Close.
type Devfs struct {
	path string

	mu    sync.Mutex
	conns map[uint16]*expi2c.Device
}

// OpenDevfs создаёт адаптер; файл устройства открывается при первой транзакции.
func OpenDevfs(name string) *Devfs {
	return &Devfs{path: DevicePath(name), conns: make(map[uint16]*expi2c.Device)}
}

func (d *Devfs) conn(addr uint16) (*expi2c.Device, error) {
	if c, ok := d.conns[addr]; ok {
		return c, nil
	}
	c, err := expi2c.Open(&expi2c.Devfs{Dev: d.path}, int(addr))
	if err != nil {
		return nil, fmt.Errorf("open %s addr 0x%02x: %w", d.path, addr, err)
	}
	d.conns[addr] = c
	return c, nil
}

// Tx выполняет транзакцию. Однобайтовый адрес регистра с чтением идёт одной
// комбинированной операцией ReadReg; остальные — записью и чтением подряд.
func (d *Devfs) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, err := d.conn(addr)
	if err != nil {
		return err
	}
	if len(w) == 1 && len(r) > 0 {
		return c.ReadReg(w[0], r)
	}
	if len(w) > 0 {
		if err := c.Write(w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		return c.Read(r)
	}
	return nil
}

// Close закрывает все открытые соединения.
func (d *Devfs) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for addr, c := range d.conns {
		err = multierr.Append(err, c.Close())
		delete(d.conns, addr)
	}
	return err
}

func (d *Devfs) String() string { return strings.TrimPrefix(d.path, "/dev/") }
