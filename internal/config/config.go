package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config — конфигурация ds3231d.
type Config struct {
	I2C        I2CConfig        `yaml:"i2c"`
	DeviceTree DeviceTreeConfig `yaml:"device_tree"`
	RTC        RTCConfig        `yaml:"rtc"`
	HTTP       HTTPConfig       `yaml:"http"`
	SSH        SSHConfig        `yaml:"ssh"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	LogLevel   string           `yaml:"log_level"` // debug, info, warn, error
}

// I2CConfig — шина и адрес чипа, если устройство не описано в device tree.
type I2CConfig struct {
	Backend     string `yaml:"backend"`      // periph, devfs или sim
	Bus         string `yaml:"bus"`          // "1", "i2c-1" или "/dev/i2c-1"
	Address     uint16 `yaml:"address"`      // по умолчанию 0x68
	RegBits     int    `yaml:"reg_bits"`     // 8 или 16
	SettleDelay string `yaml:"settle_delay"` // пауза после транзакции, например "100us"
}

// DeviceTreeConfig — поиск устройства в плоском device tree.
type DeviceTreeConfig struct {
	Enable  bool   `yaml:"enable"`
	Path    string `yaml:"path"`    // по умолчанию /sys/firmware/fdt
	Require bool   `yaml:"require"` // без узла device tree probe завершается ошибкой
}

// RTCConfig — поведение RTC-устройства.
type RTCConfig struct {
	// Register — регистрировать чип как rtcN (nil — да).
	Register *bool `yaml:"register"`
	// IRQ — номер прерывания для устройств без device tree (0 — без прерываний).
	IRQ int `yaml:"irq"`
	// IRQPin — имя GPIO, к которому подключён INT/SQW, например "GPIO12".
	IRQPin string `yaml:"irq_pin"`
	// Initialize записывает начальные значения времени при probe.
	Initialize bool `yaml:"initialize"`
	// HCToSys устанавливает системное время из RTC при старте.
	HCToSys bool `yaml:"hctosys"`
	// SysToHCInterval — период записи системного времени в RTC; пусто — не писать.
	SysToHCInterval string `yaml:"systohc_interval"`
}

// HTTPConfig — JSON API состояния.
type HTTPConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

// SSHConfig — консоль администратора по SSH.
type SSHConfig struct {
	Enable         bool   `yaml:"enable"`
	Listen         string `yaml:"listen"`
	HostKey        string `yaml:"host_key"`        // путь к ключу хоста; создаётся, если нет
	AuthorizedKeys string `yaml:"authorized_keys"` // формат OpenSSH
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
}

// MQTTConfig — публикация состояния в брокер MQTT.
type MQTTConfig struct {
	Enable      bool   `yaml:"enable"`
	Broker      string `yaml:"broker"` // tcp://host:1883
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	Interval    string `yaml:"interval"`
	QoS         byte   `yaml:"qos"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		I2C: I2CConfig{
			Backend:     "periph",
			Bus:         "1",
			Address:     0x68,
			RegBits:     8,
			SettleDelay: "100us",
		},
		DeviceTree: DeviceTreeConfig{
			Path: "/sys/firmware/fdt",
		},
		HTTP: HTTPConfig{
			Listen: ":8231",
		},
		SSH: SSHConfig{
			Listen:   ":2231",
			HostKey:  "/etc/ds3231d/ssh_host_rsa_key",
			Username: "admin",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "ds3231d",
			TopicPrefix: "ds3231d",
			Interval:    "10s",
		},
		LogLevel: "info",
	}
}

// Load читает конфиг из YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate проверяет значения, которые нельзя заменить умолчаниями.
func (c *Config) Validate() error {
	switch c.I2C.Backend {
	case "periph", "devfs", "sim":
	default:
		return fmt.Errorf("config: i2c.backend %q: want periph, devfs or sim", c.I2C.Backend)
	}
	if c.I2C.RegBits != 8 && c.I2C.RegBits != 16 {
		return fmt.Errorf("config: i2c.reg_bits %d: want 8 or 16", c.I2C.RegBits)
	}
	if c.I2C.Address == 0 || c.I2C.Address > 0x7f {
		return fmt.Errorf("config: i2c.address 0x%x out of 7-bit range", c.I2C.Address)
	}
	if _, err := c.I2C.Settle(); err != nil {
		return err
	}
	if _, err := c.RTC.SysToHC(); err != nil {
		return err
	}
	if _, err := c.MQTT.PublishInterval(); err != nil {
		return err
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos %d: want 0, 1 or 2", c.MQTT.QoS)
	}
	return nil
}

// Settle возвращает паузу после транзакции.
func (c I2CConfig) Settle() (time.Duration, error) {
	d, err := time.ParseDuration(c.SettleDelay)
	if err != nil {
		return 0, fmt.Errorf("config: i2c.settle_delay: %w", err)
	}
	return d, nil
}

// RegisterEnabled сообщает, регистрировать ли чип как rtcN.
func (c RTCConfig) RegisterEnabled() bool { return c.Register == nil || *c.Register }

// SysToHC возвращает период записи в RTC; 0 — выключено.
func (c RTCConfig) SysToHC() (time.Duration, error) {
	if c.SysToHCInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SysToHCInterval)
	if err != nil {
		return 0, fmt.Errorf("config: rtc.systohc_interval: %w", err)
	}
	return d, nil
}

// PublishInterval возвращает период публикации в MQTT.
func (c MQTTConfig) PublishInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("config: mqtt.interval: %w", err)
	}
	return d, nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.I2C.Backend == "" {
		c.I2C.Backend = d.I2C.Backend
	}
	if c.I2C.Bus == "" {
		c.I2C.Bus = d.I2C.Bus
	}
	if c.I2C.Address == 0 {
		c.I2C.Address = d.I2C.Address
	}
	if c.I2C.RegBits == 0 {
		c.I2C.RegBits = d.I2C.RegBits
	}
	if c.I2C.SettleDelay == "" {
		c.I2C.SettleDelay = d.I2C.SettleDelay
	}
	if c.DeviceTree.Path == "" {
		c.DeviceTree.Path = d.DeviceTree.Path
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = d.HTTP.Listen
	}
	if c.SSH.Listen == "" {
		c.SSH.Listen = d.SSH.Listen
	}
	if c.SSH.HostKey == "" {
		c.SSH.HostKey = d.SSH.HostKey
	}
	if c.SSH.Username == "" {
		c.SSH.Username = d.SSH.Username
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = d.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
	if c.MQTT.Interval == "" {
		c.MQTT.Interval = d.MQTT.Interval
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}
