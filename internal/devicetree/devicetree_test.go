package devicetree

import (
	"testing"

	"github.com/u-root/u-root/pkg/dt"
)

func str(s ...string) []byte {
	var b []byte
	for _, v := range s {
		b = append(b, v...)
		b = append(b, 0)
	}
	return b
}

func u32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func jetsonTree() *dt.FDT {
	rtc := &dt.Node{
		Name: "rtc@68",
		Properties: []dt.Property{
			{Name: "compatible", Value: str("maxim,ds3231")},
			{Name: "reg", Value: u32(0x68)},
			{Name: "interrupts", Value: append(u32(37), u32(8)...)},
		},
	}
	disabled := &dt.Node{
		Name: "rtc@57",
		Properties: []dt.Property{
			{Name: "compatible", Value: str("maxim,ds3231")},
			{Name: "reg", Value: u32(0x57)},
			{Name: "status", Value: str("disabled")},
		},
	}
	eeprom := &dt.Node{
		Name: "eeprom@50",
		Properties: []dt.Property{
			{Name: "compatible", Value: str("atmel,24c02")},
			{Name: "reg", Value: u32(0x50)},
		},
	}
	bus := &dt.Node{
		Name:       "i2c@7000c400",
		Properties: []dt.Property{{Name: "status", Value: str("okay")}},
		Children:   []*dt.Node{rtc, disabled, eeprom},
	}
	aliases := &dt.Node{
		Name:       "aliases",
		Properties: []dt.Property{{Name: "i2c1", Value: str("/i2c@7000c400")}},
	}
	return &dt.FDT{RootNode: &dt.Node{Children: []*dt.Node{aliases, bus}}}
}

func TestScan(t *testing.T) {
	devs, err := Scan(jetsonTree(), []string{"maxim,ds3231"})
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 1 {
		t.Fatalf("found %d devices, want 1: %+v", len(devs), devs)
	}
	d := devs[0]
	if d.Addr != 0x68 || d.IRQ != 37 || d.Type != "ds3231" {
		t.Errorf("device = %+v", d)
	}
	if d.Bus != "i2c-1" {
		t.Errorf("bus = %q, want i2c-1", d.Bus)
	}
	if d.OFPath != "/i2c@7000c400/rtc@68" {
		t.Errorf("path = %q", d.OFPath)
	}
	if !d.HasOFNode() {
		t.Error("HasOFNode() = false")
	}
}

func TestScanMissingReg(t *testing.T) {
	tree := &dt.FDT{RootNode: &dt.Node{Children: []*dt.Node{{
		Name:       "rtc",
		Properties: []dt.Property{{Name: "compatible", Value: str("maxim,ds3231")}},
	}}}}
	if _, err := Scan(tree, []string{"maxim,ds3231"}); err == nil {
		t.Error("expected error for node without reg")
	}
}

func TestCompatibleList(t *testing.T) {
	n := &dt.Node{Properties: []dt.Property{{Name: "compatible", Value: str("maxim,ds3232", "maxim,ds3231")}}}
	got := Compatible(n)
	if len(got) != 2 || got[1] != "maxim,ds3231" {
		t.Errorf("Compatible = %q", got)
	}
}
