// Package irq ожидает фронты на линии прерывания GPIO и вызывает обработчик.
package irq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Line — линия, на которой можно ждать фронт (gpio.PinIn).
type Line interface {
	WaitForEdge(timeout time.Duration) bool
}

// Handler обслуживает одно прерывание.
type Handler func() error

// pollTimeout ограничивает одно ожидание фронта, чтобы Run замечал отмену контекста.
const pollTimeout = 500 * time.Millisecond

var initOnce sync.Once
var initErr error

// Open находит вывод по имени (например "GPIO12") и настраивает его на вход
// с подтяжкой вверх и срабатыванием по спаду: INT/SQW у DS3231 — открытый сток,
// активный низкий уровень.
func Open(name string) (gpio.PinIO, error) {
	initOnce.Do(func() { _, initErr = host.Init() })
	if initErr != nil {
		return nil, fmt.Errorf("irq: host init: %w", initErr)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("irq: no gpio %q", name)
	}
	if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("irq: configure %s: %w", name, err)
	}
	return p, nil
}

// Run ждёт фронты на line и вызывает h до отмены ctx. Ошибки обработчика
// передаются в onErr (если он задан) и не прерывают цикл.
func Run(ctx context.Context, line Line, h Handler, onErr func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !line.WaitForEdge(pollTimeout) {
			continue
		}
		if err := h(); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
