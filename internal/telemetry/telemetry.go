// Package telemetry публикует состояние RTC и события будильника в MQTT.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"

	"github.com/shiwa/jetson-ds3231/internal/logger"
	"github.com/shiwa/jetson-ds3231/internal/rtc"
	"github.com/shiwa/jetson-ds3231/pkg/ds3231"
)

// Sink принимает готовые сообщения.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// Config — подключение к брокеру.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	// WillTopic получает "offline" при обрыве соединения.
	WillTopic string
}

// MQTT — Sink поверх клиента paho.
type MQTT struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

// Dial подключается к брокеру.
func Dial(cfg Config) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, "offline", cfg.QoS, true)
	}
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect %s: timeout", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, err)
	}
	m := &MQTT{client: c, qos: cfg.QoS, timeout: 5 * time.Second}
	if cfg.WillTopic != "" {
		tok := c.Publish(cfg.WillTopic, cfg.QoS, true, "online")
		tok.WaitTimeout(m.timeout)
	}
	return m, nil
}

// Publish отправляет сообщение и ждёт подтверждения.
func (m *MQTT) Publish(topic string, payload []byte) error {
	tok := m.client.Publish(topic, m.qos, false, payload)
	if !tok.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt: publish %s: timeout", topic)
	}
	return tok.Error()
}

// Close отключается от брокера.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

// Publisher формирует темы <Prefix>/<rtc>/status и <Prefix>/<rtc>/alarm.
type Publisher struct {
	Sink   Sink
	Prefix string
	List   func() []*ds3231.Device
}

// StatusTopic возвращает тему состояния устройства.
func (p *Publisher) StatusTopic(name string) string {
	return fmt.Sprintf("%s/%s/status", p.Prefix, name)
}

// AlarmTopic возвращает тему событий будильника.
func (p *Publisher) AlarmTopic(name string) string {
	return fmt.Sprintf("%s/%s/alarm", p.Prefix, name)
}

// PublishStatus публикует снимки всех устройств.
func (p *Publisher) PublishStatus() error {
	var err error
	for _, d := range p.List() {
		sn := d.Snapshot()
		payload, jerr := json.Marshal(sn)
		if jerr != nil {
			err = multierr.Append(err, jerr)
			continue
		}
		err = multierr.Append(err, p.Sink.Publish(p.StatusTopic(sn.Name), payload))
	}
	return err
}

// PublishEvent публикует событие прерывания.
func (p *Publisher) PublishEvent(ev rtc.Event) error {
	payload, err := json.Marshal(struct {
		Device string    `json:"device"`
		Count  int       `json:"count"`
		Flags  uint      `json:"flags"`
		At     time.Time `json:"at"`
	}{ev.Device, ev.Count, ev.Flags, ev.At})
	if err != nil {
		return err
	}
	return p.Sink.Publish(p.AlarmTopic(ev.Device), payload)
}

// Run публикует состояние каждые interval до отмены ctx.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) error {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := p.PublishStatus(); err != nil {
			logger.Error("telemetry: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
