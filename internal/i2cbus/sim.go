package i2cbus

import (
	"fmt"
	"sync"
)

// Sim — программная шина: у каждого адреса 256 байтовых регистров с
// 8-битным адресом и автоинкрементом, как у DS3231. Время в регистрах не идёт.
type Sim struct {
	name string

	mu     sync.Mutex
	regs   map[uint16]*[256]byte
	fail   error
	closed bool
}

// NewSim создаёт пустую программную шину.
func NewSim(name string) *Sim {
	return &Sim{name: name, regs: make(map[uint16]*[256]byte)}
}

func (s *Sim) bank(addr uint16) *[256]byte {
	b, ok := s.regs[addr]
	if !ok {
		b = new([256]byte)
		s.regs[addr] = b
	}
	return b
}

// Tx: первый байт w — адрес регистра, остальные записываются подряд;
// затем r читается с того же адреса.
func (s *Sim) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%s: bus closed", s)
	}
	if s.fail != nil {
		return s.fail
	}
	if len(w) == 0 {
		return fmt.Errorf("%s: no register address", s)
	}
	b := s.bank(addr)
	reg := w[0]
	for i, v := range w[1:] {
		b[reg+byte(i)] = v
	}
	for i := range r {
		r[i] = b[reg+byte(i)]
	}
	return nil
}

// Set записывает регистр в обход транзакций.
func (s *Sim) Set(addr uint16, reg, v byte) {
	s.mu.Lock()
	s.bank(addr)[reg] = v
	s.mu.Unlock()
}

// Get читает регистр в обход транзакций.
func (s *Sim) Get(addr uint16, reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank(addr)[reg]
}

// Fail заставляет все следующие транзакции возвращать err (nil — снять).
func (s *Sim) Fail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Close закрывает шину.
func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Sim) String() string { return "sim-" + s.name }
