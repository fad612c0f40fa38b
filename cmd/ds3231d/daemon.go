package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/shiwa/jetson-ds3231/internal/config"
	"github.com/shiwa/jetson-ds3231/internal/console"
	"github.com/shiwa/jetson-ds3231/internal/driver"
	"github.com/shiwa/jetson-ds3231/internal/httpapi"
	"github.com/shiwa/jetson-ds3231/internal/logger"
	"github.com/shiwa/jetson-ds3231/internal/rtc"
	"github.com/shiwa/jetson-ds3231/internal/telemetry"
	"github.com/shiwa/jetson-ds3231/pkg/ds3231"
)

// runDaemon запускает фоновые задачи и ждёт SIGINT/SIGTERM.
func runDaemon(cfg *config.Config, core *driver.Core) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("получен сигнал %v, завершение...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	list := func() []*ds3231.Device { return ds3231.Bound(core) }
	var wg sync.WaitGroup
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("%s: %v", name, err)
			}
		}()
	}

	var pub *telemetry.Publisher
	if cfg.MQTT.Enable {
		sink, err := telemetry.Dial(telemetry.Config{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			QoS:       cfg.MQTT.QoS,
			WillTopic: cfg.MQTT.TopicPrefix + "/state",
		})
		if err != nil {
			logger.Error("%v", err)
		} else {
			defer sink.Close()
			pub = &telemetry.Publisher{Sink: sink, Prefix: cfg.MQTT.TopicPrefix, List: list}
			interval, _ := cfg.MQTT.PublishInterval()
			spawn("telemetry", func() error { return pub.Run(ctx, interval) })
		}
	}

	systohc, _ := cfg.RTC.SysToHC()
	for _, d := range list() {
		rd := d.RTC()
		if rd == nil {
			continue
		}
		if cfg.RTC.HCToSys {
			if err := runHCToSys(d); err != nil {
				logger.Error("hctosys: %v", err)
			}
		}
		if systohc > 0 {
			spawn(rd.Name()+" systohc", func() error { return rtc.RunSysToHC(ctx, rd, systohc) })
		}
		spawn(rd.Name()+" events", func() error { return watchEvents(ctx, rd, pub) })
	}

	if cfg.HTTP.Enable {
		srv := &httpapi.Server{List: list}
		spawn("http", func() error { return srv.Run(ctx, cfg.HTTP.Listen) })
	}
	if cfg.SSH.Enable {
		shell := &console.Shell{List: list, Version: version}
		srv, err := console.New(console.Config{
			HostKey:        cfg.SSH.HostKey,
			AuthorizedKeys: cfg.SSH.AuthorizedKeys,
			Username:       cfg.SSH.Username,
			Password:       cfg.SSH.Password,
		}, shell)
		if err != nil {
			logger.Error("%v", err)
		} else {
			spawn("ssh", func() error { return srv.Run(ctx, cfg.SSH.Listen) })
		}
	}

	logger.Info("ds3231d %s running, %d device(s)", version, len(list()))
	<-ctx.Done()
	wg.Wait()
	return nil
}

// watchEvents журналирует события будильника и пересылает их в MQTT.
// Канал закрывается при снятии устройства.
func watchEvents(ctx context.Context, d *rtc.Device, pub *telemetry.Publisher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-d.Events():
			if !ok {
				return nil
			}
			logger.Info("%s: alarm event, flags 0x%x", ev.Device, ev.Flags)
			if pub != nil {
				if err := pub.PublishEvent(ev); err != nil {
					logger.Error("%s: publish event: %v", ev.Device, err)
				}
			}
		}
	}
}
