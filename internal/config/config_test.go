package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ds3231d.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "i2c:\n  bus: \"0\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.I2C.Bus != "0" {
		t.Errorf("bus = %q, want 0", c.I2C.Bus)
	}
	if c.I2C.Address != 0x68 || c.I2C.RegBits != 8 || c.I2C.Backend != "periph" {
		t.Errorf("i2c defaults not applied: %+v", c.I2C)
	}
	if d, _ := c.I2C.Settle(); d != 100*time.Microsecond {
		t.Errorf("settle = %v, want 100us", d)
	}
	if !c.RTC.RegisterEnabled() {
		t.Error("rtc.register should default to true")
	}
	if d, _ := c.RTC.SysToHC(); d != 0 {
		t.Errorf("systohc = %v, want disabled", d)
	}
	if c.DeviceTree.Path != "/sys/firmware/fdt" || c.LogLevel != "info" {
		t.Errorf("defaults not applied: %+v %q", c.DeviceTree, c.LogLevel)
	}
}

func TestLoadFullConfig(t *testing.T) {
	body := `
i2c:
  backend: devfs
  bus: /dev/i2c-8
  address: 0x57
  reg_bits: 16
  settle_delay: 110us
device_tree:
  enable: true
  require: true
rtc:
  register: false
  irq_pin: GPIO12
  initialize: true
  hctosys: true
  systohc_interval: 11m
mqtt:
  enable: true
  broker: tcp://broker:1883
  qos: 1
log_level: debug
`
	c, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatal(err)
	}
	if c.I2C.Backend != "devfs" || c.I2C.Address != 0x57 || c.I2C.RegBits != 16 {
		t.Errorf("i2c = %+v", c.I2C)
	}
	if c.RTC.RegisterEnabled() {
		t.Error("rtc.register: false ignored")
	}
	if d, _ := c.RTC.SysToHC(); d != 11*time.Minute {
		t.Errorf("systohc = %v", d)
	}
	if !c.DeviceTree.Enable || !c.DeviceTree.Require || c.DeviceTree.Path == "" {
		t.Errorf("device_tree = %+v", c.DeviceTree)
	}
	if c.MQTT.TopicPrefix != "ds3231d" || c.MQTT.QoS != 1 {
		t.Errorf("mqtt = %+v", c.MQTT)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"i2c:\n  backend: spi\n", "i2c.backend"},
		{"i2c:\n  reg_bits: 12\n", "i2c.reg_bits"},
		{"i2c:\n  address: 0x80\n", "i2c.address"},
		{"i2c:\n  settle_delay: soon\n", "i2c.settle_delay"},
		{"rtc:\n  systohc_interval: often\n", "rtc.systohc_interval"},
		{"mqtt:\n  qos: 3\n", "mqtt.qos"},
		{"i2c: [\n", "parse config"},
	}
	for _, tt := range tests {
		_, err := Load(writeConfig(t, tt.body))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Load(%q) = %v, want error mentioning %q", tt.body, err, tt.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
