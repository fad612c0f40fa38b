package i2cbus

import (
	"testing"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestDevicePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/dev/i2c-1"},
		{"1", "/dev/i2c-1"},
		{"i2c-8", "/dev/i2c-8"},
		{"I2C2", "/dev/i2c-2"},
		{"/dev/i2c-0", "/dev/i2c-0"},
	}
	for _, tt := range tests {
		if got := DevicePath(tt.in); got != tt.want {
			t.Errorf("DevicePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("smbus", "1"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestDevfsString(t *testing.T) {
	if got := OpenDevfs("2").String(); got != "i2c-2" {
		t.Errorf("String() = %q", got)
	}
}

func TestSimAutoIncrement(t *testing.T) {
	s := NewSim("0")
	if err := s.Tx(0x68, []byte{0x10, 0xaa, 0xbb}, nil); err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 3)
	if err := s.Tx(0x68, []byte{0x0f}, r); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0 || r[1] != 0xaa || r[2] != 0xbb {
		t.Errorf("read % x", r)
	}
	if s.Get(0x57, 0x10) != 0 {
		t.Error("addresses share registers")
	}
	if s.String() != "sim-0" {
		t.Errorf("String() = %q", s.String())
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Tx(0x68, []byte{0}, r); err == nil {
		t.Error("Tx after Close succeeded")
	}
}

func TestOpenSim(t *testing.T) {
	a, err := Open(BackendSim, "3")
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != "sim-3" {
		t.Errorf("String() = %q", a.String())
	}
}

func TestOpenPeriphAcceptsDeviceTreeName(t *testing.T) {
	opener := func() (i2c.BusCloser, error) { return &i2ctest.Playback{}, nil }
	if err := i2creg.Register("/dev/i2c-91", []string{"I2C91"}, 91, opener); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = i2creg.Unregister("/dev/i2c-91") }()

	for _, name := range []string{"i2c-91", "91", "I2C91", "/dev/i2c-91"} {
		p, err := OpenPeriph(name)
		if err != nil {
			t.Errorf("OpenPeriph(%q): %v", name, err)
			continue
		}
		if err := p.Close(); err != nil {
			t.Errorf("Close(%q): %v", name, err)
		}
	}
}
