package driver

import (
	"errors"
	"testing"
)

type fakeAdapter struct {
	closed int
	last   uint16
}

func (a *fakeAdapter) Tx(addr uint16, w, r []byte) error { a.last = addr; return nil }
func (a *fakeAdapter) Close() error                      { a.closed++; return nil }
func (a *fakeAdapter) String() string                    { return "i2c-1" }

func testDriver(probed, removed *int) *Driver {
	return &Driver{
		Name:         "ds3231",
		OFMatchTable: []string{"maxim,ds3231"},
		IDTable:      []ID{{Name: "ds3231"}},
		Probe: func(c *Client, id *ID) error {
			*probed++
			c.SetDriverData(id.Name)
			return nil
		},
		Remove: func(c *Client) error {
			*removed++
			return nil
		},
	}
}

func TestMatch(t *testing.T) {
	var p, r int
	d := testDriver(&p, &r)
	tests := []struct {
		name string
		info BoardInfo
		want bool
	}{
		{"compatible", BoardInfo{Type: "rtc", Compatible: []string{"vendor,x", "maxim,ds3231"}}, true},
		{"legacy id", BoardInfo{Type: "ds3231"}, true},
		{"other chip", BoardInfo{Type: "ds1307", Compatible: []string{"maxim,ds1307"}}, false},
	}
	for _, tt := range tests {
		id, ok := d.Match(tt.info)
		if ok != tt.want {
			t.Errorf("%s: Match = %v, want %v", tt.name, ok, tt.want)
		}
		if ok && id == nil {
			t.Errorf("%s: match without id entry", tt.name)
		}
	}
}

func TestCoreLifecycle(t *testing.T) {
	var probed, removed int
	core := NewCore()
	a := &fakeAdapter{}

	// клиент до драйвера: привязка при AddDriver
	cl, err := core.NewClient(BoardInfo{Type: "ds3231", Addr: 0x68}, a)
	if err != nil {
		t.Fatal(err)
	}
	if cl.Driver() != nil {
		t.Fatal("client bound without driver")
	}
	d := testDriver(&probed, &removed)
	if err := core.AddDriver(d); err != nil {
		t.Fatal(err)
	}
	if probed != 1 || cl.Driver() != d || cl.DriverData() != "ds3231" {
		t.Fatalf("probe not called on AddDriver: probed=%d", probed)
	}
	if err := core.AddDriver(d); err == nil {
		t.Error("duplicate AddDriver should fail")
	}

	if err := cl.Tx([]byte{0}, nil); err != nil || a.last != 0x68 {
		t.Errorf("Tx addr = 0x%x, err = %v", a.last, err)
	}

	if err := core.DelDriver(d); err != nil {
		t.Fatal(err)
	}
	if removed != 1 || cl.DriverData() != nil {
		t.Fatalf("remove not called on DelDriver: removed=%d", removed)
	}

	if err := core.UnregisterClient(cl); err != nil {
		t.Fatal(err)
	}
	if err := core.UnregisterClient(cl); err != nil {
		t.Fatal(err)
	}
	if a.closed != 1 {
		t.Errorf("adapter closed %d times, want 1", a.closed)
	}
	if len(core.Clients()) != 0 {
		t.Error("client still registered")
	}
}

func TestProbeFailureLeavesClientUnbound(t *testing.T) {
	boom := errors.New("no device")
	core := NewCore()
	d := &Driver{
		Name:    "ds3231",
		IDTable: []ID{{Name: "ds3231"}},
		Probe: func(c *Client, id *ID) error {
			c.SetDriverData("partial")
			return boom
		},
	}
	if err := core.AddDriver(d); err != nil {
		t.Fatal(err)
	}
	cl, err := core.NewClient(BoardInfo{Type: "ds3231", Addr: 0x68}, &fakeAdapter{})
	if !errors.Is(err, boom) {
		t.Fatalf("NewClient err = %v, want %v", err, boom)
	}
	if cl.Driver() != nil || cl.DriverData() != nil {
		t.Error("failed probe must leave client without driver data")
	}
}

func TestNilClientClose(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Error(err)
	}
}
