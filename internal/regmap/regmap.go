// Package regmap — кэширующая абстракция над адресуемыми регистрами устройства на
// последовательной шине (аналог regmap ядра Linux для I2C).
//
// Адрес регистра кодируется 8 или 16 битами (big-endian), значение — 8 бит.
// Все обращения к шине и к кэшу сериализуются мьютексом карты.
package regmap

import (
	"errors"
	"fmt"
	"sync"
)

// Bus — шина, адресованная на одно устройство: запись w, затем чтение r
// (повторный старт). Реализуется *i2c.Dev из periph и driver.Client.
type Bus interface {
	Tx(w, r []byte) error
}

// CacheType — тип кэша регистров.
type CacheType int

const (
	// CacheNone — каждое чтение идёт на шину.
	CacheNone CacheType = iota
	// CacheFlat — плоский кэш на MaxRegister+1 значений, сквозная запись.
	CacheFlat
)

func (c CacheType) String() string {
	switch c {
	case CacheNone:
		return "none"
	case CacheFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// Config описывает формат регистров устройства.
type Config struct {
	RegBits     int // 8 или 16
	ValBits     int // только 8
	MaxRegister uint
	CacheType   CacheType
	// Volatile сообщает, что регистр меняется самим устройством и не кэшируется.
	Volatile func(reg uint) bool
}

var (
	// ErrConfig — недопустимая конфигурация карты.
	ErrConfig = errors.New("regmap: invalid config")
	// ErrRange — адрес вне 0..MaxRegister.
	ErrRange = errors.New("regmap: register out of range")
)

// Map — карта регистров одного устройства.
type Map struct {
	mu    sync.Mutex
	bus   Bus
	cfg   Config
	cache []byte
	valid []bool
}

// New создаёт карту регистров поверх bus.
func New(bus Bus, cfg Config) (*Map, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrConfig)
	}
	if cfg.RegBits != 8 && cfg.RegBits != 16 {
		return nil, fmt.Errorf("%w: reg_bits=%d", ErrConfig, cfg.RegBits)
	}
	if cfg.ValBits == 0 {
		cfg.ValBits = 8
	}
	if cfg.ValBits != 8 {
		return nil, fmt.Errorf("%w: val_bits=%d", ErrConfig, cfg.ValBits)
	}
	if cfg.RegBits == 8 && cfg.MaxRegister > 0xff {
		return nil, fmt.Errorf("%w: max_register 0x%x does not fit 8 bits", ErrConfig, cfg.MaxRegister)
	}
	m := &Map{bus: bus, cfg: cfg}
	if cfg.CacheType == CacheFlat {
		if cfg.MaxRegister == 0 {
			return nil, fmt.Errorf("%w: flat cache needs max_register", ErrConfig)
		}
		m.cache = make([]byte, cfg.MaxRegister+1)
		m.valid = make([]bool, cfg.MaxRegister+1)
	}
	return m, nil
}

// Config возвращает конфигурацию карты.
func (m *Map) Config() Config { return m.cfg }

func (m *Map) addr(reg uint) []byte {
	if m.cfg.RegBits == 16 {
		return []byte{byte(reg >> 8), byte(reg)}
	}
	return []byte{byte(reg)}
}

func (m *Map) check(reg uint, n int) error {
	if m.cfg.MaxRegister == 0 {
		return nil
	}
	if n == 0 || reg+uint(n)-1 > m.cfg.MaxRegister {
		return fmt.Errorf("%w: 0x%x+%d", ErrRange, reg, n)
	}
	return nil
}

func (m *Map) cacheable(reg uint) bool {
	if m.cache == nil {
		return false
	}
	return m.cfg.Volatile == nil || !m.cfg.Volatile(reg)
}

// Read читает один регистр.
func (m *Map) Read(reg uint) (uint, error) {
	var b [1]byte
	if err := m.BulkRead(reg, b[:]); err != nil {
		return 0, err
	}
	return uint(b[0]), nil
}

// Write записывает один регистр.
func (m *Map) Write(reg, val uint) error {
	return m.BulkWrite(reg, []byte{byte(val)})
}

// BulkRead читает len(buf) последовательных регистров, начиная с reg.
// Если все регистры блока кэшируемы и есть в кэше, шина не используется.
func (m *Map) BulkRead(reg uint, buf []byte) error {
	if err := m.check(reg, len(buf)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bulkRead(reg, buf)
}

func (m *Map) bulkRead(reg uint, buf []byte) error {
	hit := m.cache != nil
	for i := range buf {
		r := reg + uint(i)
		if !m.cacheable(r) || !m.valid[r] {
			hit = false
			break
		}
	}
	if hit {
		copy(buf, m.cache[reg:reg+uint(len(buf))])
		return nil
	}
	if err := m.bus.Tx(m.addr(reg), buf); err != nil {
		return fmt.Errorf("regmap: read 0x%x: %w", reg, err)
	}
	for i, v := range buf {
		if r := reg + uint(i); m.cacheable(r) {
			m.cache[r] = v
			m.valid[r] = true
		}
	}
	return nil
}

// BulkWrite записывает buf в последовательные регистры, начиная с reg.
// Кэш обновляется только после успешной записи.
func (m *Map) BulkWrite(reg uint, buf []byte) error {
	if err := m.check(reg, len(buf)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bulkWrite(reg, buf)
}

func (m *Map) bulkWrite(reg uint, buf []byte) error {
	w := append(m.addr(reg), buf...)
	if err := m.bus.Tx(w, nil); err != nil {
		return fmt.Errorf("regmap: write 0x%x: %w", reg, err)
	}
	for i, v := range buf {
		if r := reg + uint(i); m.cacheable(r) {
			m.cache[r] = v
			m.valid[r] = true
		}
	}
	return nil
}

// UpdateBits выполняет read-modify-write: биты mask получают значение val.
// Запись не выполняется, если значение не изменилось. Чтение и запись
// выполняются под одной блокировкой карты.
func (m *Map) UpdateBits(reg, mask, val uint) (changed bool, err error) {
	if err := m.check(reg, 1); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var b [1]byte
	if err := m.bulkRead(reg, b[:]); err != nil {
		return false, err
	}
	old := uint(b[0])
	v := old&^mask | val&mask
	if v == old {
		return false, nil
	}
	if err := m.bulkWrite(reg, []byte{byte(v)}); err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate сбрасывает кэш: следующие чтения пойдут на шину.
func (m *Map) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.valid {
		m.valid[i] = false
	}
}

// Cached возвращает значение регистра из кэша без обращения к шине.
func (m *Map) Cached(reg uint) (uint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cacheable(reg) || reg >= uint(len(m.cache)) || !m.valid[reg] {
		return 0, false
	}
	return uint(m.cache[reg]), true
}
