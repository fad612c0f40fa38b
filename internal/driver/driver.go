// Package driver — модель I2C-драйверов: регистрация драйверов, сопоставление
// устройств по compatible-строкам и legacy-идентификаторам, жизненный цикл
// клиента (probe/remove) и непрозрачные данные драйвера.
package driver

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/shiwa/jetson-ds3231/internal/logger"
)

// Adapter — I2C-адаптер (шина), к которому подключены клиенты.
type Adapter interface {
	Tx(addr uint16, w, r []byte) error
	Close() error
	String() string
}

// ID — строка legacy-таблицы идентификаторов (i2c_device_id).
type ID struct {
	Name string
	Data interface{}
}

// Driver описывает I2C-драйвер.
type Driver struct {
	Name         string
	OFMatchTable []string // compatible-строки device tree
	IDTable      []ID
	Probe        func(c *Client, id *ID) error
	Remove       func(c *Client) error
}

// BoardInfo — описание устройства на шине (i2c_board_info).
type BoardInfo struct {
	Type       string   // legacy-имя, например "ds3231"
	Addr       uint16
	IRQ        int      // 0 — нет линии прерывания
	Compatible []string // из device tree; пусто, если узла нет
	OFPath     string
}

// HasOFNode сообщает, описано ли устройство в device tree.
func (b BoardInfo) HasOFNode() bool { return len(b.Compatible) > 0 }

var (
	// ErrBusy — клиент уже привязан к драйверу.
	ErrBusy = errors.New("driver: client already bound")
	// ErrNoMatch — драйвер не подходит к устройству.
	ErrNoMatch = errors.New("driver: no match")
)

// Client — устройство на адаптере с адресом (i2c_client).
type Client struct {
	Info    BoardInfo
	adapter Adapter

	mu     sync.Mutex // сериализует probe/remove
	driver *Driver
	data   interface{}

	closeOnce sync.Once
	closeErr  error
}

// NewClient создаёт клиента без привязки к Core (для тестов и прямого использования).
func NewClient(info BoardInfo, a Adapter) *Client {
	return &Client{Info: info, adapter: a}
}

func (c *Client) String() string {
	if c.adapter == nil {
		return fmt.Sprintf("%s@0x%02x", c.Info.Type, c.Info.Addr)
	}
	return fmt.Sprintf("%s-%s@0x%02x", c.Info.Type, c.adapter, c.Info.Addr)
}

// Tx выполняет транзакцию по адресу клиента; реализует regmap.Bus.
func (c *Client) Tx(w, r []byte) error {
	if c.adapter == nil {
		return errors.New("driver: client has no adapter")
	}
	return c.adapter.Tx(c.Info.Addr, w, r)
}

// SetDriverData сохраняет непрозрачные данные драйвера.
func (c *Client) SetDriverData(v interface{}) { c.data = v }

// DriverData возвращает данные драйвера (nil до успешного probe).
func (c *Client) DriverData() interface{} { return c.data }

// Driver возвращает привязанный драйвер или nil.
func (c *Client) Driver() *Driver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver
}

// Close освобождает адаптер клиента; повторный вызов ничего не делает.
func (c *Client) Close() error {
	if c == nil || c.adapter == nil {
		return nil
	}
	c.closeOnce.Do(func() { c.closeErr = c.adapter.Close() })
	return c.closeErr
}

// Match возвращает строку ID, если драйвер подходит к устройству.
// Сначала compatible-строки, затем legacy-имя.
func (d *Driver) Match(info BoardInfo) (*ID, bool) {
	for _, want := range d.OFMatchTable {
		for _, have := range info.Compatible {
			if want == have {
				return d.idFor(info.Type), true
			}
		}
	}
	for i := range d.IDTable {
		if d.IDTable[i].Name == info.Type {
			return &d.IDTable[i], true
		}
	}
	return nil, false
}

func (d *Driver) idFor(name string) *ID {
	for i := range d.IDTable {
		if d.IDTable[i].Name == name {
			return &d.IDTable[i]
		}
	}
	if len(d.IDTable) > 0 {
		return &d.IDTable[0]
	}
	return nil
}

// bind вызывает probe под замком клиента.
func (c *Client) bind(d *Driver) error {
	id, ok := d.Match(c.Info)
	if !ok {
		return ErrNoMatch
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver != nil {
		return ErrBusy
	}
	if d.Probe != nil {
		if err := d.Probe(c, id); err != nil {
			c.data = nil
			return err
		}
	}
	c.driver = d
	return nil
}

// unbind вызывает remove под замком клиента.
func (c *Client) unbind() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.driver
	if d == nil {
		return nil
	}
	var err error
	if d.Remove != nil {
		err = d.Remove(c)
	}
	c.driver = nil
	c.data = nil
	return err
}

// Core — реестр драйверов и клиентов.
type Core struct {
	mu      sync.Mutex
	drivers []*Driver
	clients []*Client
}

// NewCore создаёт пустой реестр.
func NewCore() *Core { return &Core{} }

// AddDriver регистрирует драйвер и привязывает его к уже известным клиентам
// (i2c_add_driver). Ошибки probe отдельных клиентов логируются и не мешают регистрации.
func (c *Core) AddDriver(d *Driver) error {
	if d == nil || d.Name == "" {
		return errors.New("driver: unnamed driver")
	}
	c.mu.Lock()
	for _, have := range c.drivers {
		if have.Name == d.Name {
			c.mu.Unlock()
			return fmt.Errorf("driver: %s already registered", d.Name)
		}
	}
	c.drivers = append(c.drivers, d)
	clients := append([]*Client(nil), c.clients...)
	c.mu.Unlock()

	for _, cl := range clients {
		if cl.Driver() != nil {
			continue
		}
		if err := cl.bind(d); err != nil && !errors.Is(err, ErrNoMatch) {
			logger.Error("%s: probe %s: %v", d.Name, cl, err)
		}
	}
	return nil
}

// DelDriver отвязывает драйвер от всех клиентов и удаляет его (i2c_del_driver).
func (c *Core) DelDriver(d *Driver) error {
	c.mu.Lock()
	for i, have := range c.drivers {
		if have == d {
			c.drivers = append(c.drivers[:i], c.drivers[i+1:]...)
			break
		}
	}
	clients := append([]*Client(nil), c.clients...)
	c.mu.Unlock()

	var err error
	for _, cl := range clients {
		if cl.Driver() == d {
			err = multierr.Append(err, cl.unbind())
		}
	}
	return err
}

// NewClient регистрирует устройство на адаптере и пытается привязать драйвер
// (i2c_new_client_device). Ошибка probe возвращается вызывающему; клиент при
// этом остаётся зарегистрированным без драйвера.
func (c *Core) NewClient(info BoardInfo, a Adapter) (*Client, error) {
	cl := NewClient(info, a)
	c.mu.Lock()
	c.clients = append(c.clients, cl)
	drivers := append([]*Driver(nil), c.drivers...)
	c.mu.Unlock()

	for _, d := range drivers {
		err := cl.bind(d)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		return cl, err
	}
	return cl, nil
}

// UnregisterClient отвязывает драйвер, закрывает адаптер клиента и удаляет его.
func (c *Core) UnregisterClient(cl *Client) error {
	if cl == nil {
		return nil
	}
	c.mu.Lock()
	for i, have := range c.clients {
		if have == cl {
			c.clients = append(c.clients[:i], c.clients[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return multierr.Append(cl.unbind(), cl.Close())
}

// Clients возвращает снимок зарегистрированных клиентов.
func (c *Core) Clients() []*Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Client(nil), c.clients...)
}

// Shutdown отвязывает и закрывает всех клиентов.
func (c *Core) Shutdown() error {
	var err error
	for _, cl := range c.Clients() {
		err = multierr.Append(err, c.UnregisterClient(cl))
	}
	return err
}
