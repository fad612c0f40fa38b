// ds3231d — драйвер RTC DS3231 в пространстве пользователя (Jetson Nano и
// другие Linux-платы): probe чипа на /dev/i2c-N, регистрация rtcN, чтение и
// установка времени, будильник, температура, синхронизация с системными часами.
//
// Использование:
//
//	ds3231d -show                        — состояние чипа
//	ds3231d -set now | -set 2024-01-02T03:04:05Z
//	ds3231d -hctosys | -systohc
//	ds3231d -alarm 2024-01-02T06:00:00Z | -alarm-off
//	ds3231d -run -config ds3231d.yml     — daemon: systohc, прерывания, HTTP, SSH, MQTT
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shiwa/jetson-ds3231/internal/config"
	"github.com/shiwa/jetson-ds3231/internal/console"
	"github.com/shiwa/jetson-ds3231/internal/devicetree"
	"github.com/shiwa/jetson-ds3231/internal/driver"
	"github.com/shiwa/jetson-ds3231/internal/i2cbus"
	"github.com/shiwa/jetson-ds3231/internal/irq"
	"github.com/shiwa/jetson-ds3231/internal/logger"
	"github.com/shiwa/jetson-ds3231/internal/rtc"
	"github.com/shiwa/jetson-ds3231/pkg/ds3231"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run возвращает код выхода; отложенные Shutdown и Sync выполняются до os.Exit.
func run(args []string) int {
	fs := flag.NewFlagSet("ds3231d", flag.ContinueOnError)
	configPath := fs.String("config", "", "путь к YAML конфигу (по умолчанию ds3231d.yml)")
	show := fs.Bool("show", false, "показать состояние чипа")
	set := fs.String("set", "", "установить время: RFC3339 или now")
	hctosys := fs.Bool("hctosys", false, "установить системное время по RTC")
	systohc := fs.Bool("systohc", false, "записать системное время в RTC")
	alarm := fs.String("alarm", "", "включить будильник на время RFC3339")
	alarmOff := fs.Bool("alarm-off", false, "выключить будильник")
	temp := fs.Bool("temp", false, "показать температуру")
	daemon := fs.Bool("run", false, "запуск daemon")
	quiet := fs.Bool("quiet", false, "меньше вывода")
	bus := fs.String("bus", "", "шина I2C (переопределяет config)")
	addr := fs.String("addr", "", "адрес чипа, например 0x68 (переопределяет config)")
	showVersion := fs.Bool("version", false, "версия и выход")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Println("ds3231d", version)
		return 0
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Printf("config: %v", err)
		return 2
	}
	if *bus != "" {
		cfg.I2C.Bus = *bus
	}
	if *addr != "" {
		a, err := strconv.ParseUint(*addr, 0, 7)
		if err != nil {
			log.Printf("-addr %s: %v", *addr, err)
			return 2
		}
		cfg.I2C.Address = uint16(a)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("config: %v", err)
		return 2
	}
	logger.SetQuiet(*quiet)
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()

	core, err := setup(cfg)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	defer func() {
		if err := core.Shutdown(); err != nil {
			logger.Error("shutdown: %v", err)
		}
	}()
	devs := ds3231.Bound(core)
	if len(devs) == 0 {
		logger.Error("no ds3231 bound")
		return 1
	}

	if *daemon {
		if err := runDaemon(cfg, core); err != nil {
			logger.Error("%v", err)
			return 1
		}
		return 0
	}

	d := devs[0]
	shell := &console.Shell{List: func() []*ds3231.Device { return devs }, Version: version}
	exec := func(line string) bool {
		if _, err := shell.Exec(line, os.Stdout); err != nil {
			logger.Error("%s: %v", line, err)
			return false
		}
		return true
	}
	did := false
	if *set != "" {
		if !exec(fmt.Sprintf("set %s %s", d.Name(), *set)) {
			return 1
		}
		did = true
	}
	if *systohc {
		if !exec("systohc " + d.Name()) {
			return 1
		}
		did = true
	}
	if *hctosys {
		if err := runHCToSys(d); err != nil {
			logger.Error("hctosys: %v", err)
			return 1
		}
		did = true
	}
	if *alarm != "" {
		t, err := time.Parse(time.RFC3339, *alarm)
		if err != nil {
			logger.Error("-alarm: %v", err)
			return 2
		}
		if err := d.Clock().SetAlarm(rtc.WakeAlarm{Enabled: true, Time: t}); err != nil {
			logger.Error("alarm: %v", err)
			return 1
		}
		if !exec("alarm " + d.Name()) {
			return 1
		}
		did = true
	}
	if *alarmOff {
		if err := d.Clock().AlarmIRQEnable(false); err != nil {
			logger.Error("alarm-off: %v", err)
			return 1
		}
		if !exec("alarm " + d.Name()) {
			return 1
		}
		did = true
	}
	if *temp {
		if !exec("temp " + d.Name()) {
			return 1
		}
		did = true
	}
	if *show || !did {
		if !exec("show " + d.Name()) {
			return 1
		}
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = "ds3231d.yml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// setup регистрирует драйвер и создаёт клиентов: из device tree, если он
// включён, иначе по адресу из конфига.
func setup(cfg *config.Config) (*driver.Core, error) {
	settle, err := cfg.I2C.Settle()
	if err != nil {
		return nil, err
	}
	opts := ds3231.Options{
		RegBits:     cfg.I2C.RegBits,
		SettleDelay: settle,
		RequireOF:   cfg.DeviceTree.Require,
		Initialize:  cfg.RTC.Initialize,
	}
	if cfg.RTC.RegisterEnabled() {
		opts.Class = rtc.NewClass()
	}
	if pin := cfg.RTC.IRQPin; pin != "" {
		opts.OpenIRQ = func(*driver.Client) (irq.Line, error) { return irq.Open(pin) }
	}
	core := driver.NewCore()
	if err := core.AddDriver(ds3231.NewDriver(opts)); err != nil {
		return nil, err
	}

	boards, err := boardInfo(cfg)
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		adapter, err := i2cbus.Open(cfg.I2C.Backend, b.Bus)
		if err != nil {
			logger.Error("%s: %v", b.Bus, err)
			continue
		}
		if cfg.I2C.Backend == i2cbus.BackendSim {
			seedSim(adapter, b.Addr)
		}
		cl, err := core.NewClient(b.BoardInfo, adapter)
		if err != nil {
			logger.Error("%s: probe: %v", cl, err)
		}
	}
	return core, nil
}

func boardInfo(cfg *config.Config) ([]devicetree.Device, error) {
	if !cfg.DeviceTree.Enable {
		return []devicetree.Device{{
			BoardInfo: driver.BoardInfo{Type: ds3231.DriverName, Addr: cfg.I2C.Address, IRQ: cfg.RTC.IRQ},
			Bus:       cfg.I2C.Bus,
		}}, nil
	}
	fdt, err := devicetree.Load(cfg.DeviceTree.Path)
	if err != nil {
		return nil, err
	}
	devs, err := devicetree.Scan(fdt, []string{ds3231.Compatible})
	if err != nil {
		return nil, err
	}
	for i := range devs {
		if devs[i].Bus == "" {
			devs[i].Bus = cfg.I2C.Bus
		}
	}
	logger.Info("device tree: %d ds3231 node(s)", len(devs))
	return devs, nil
}

// seedSim записывает в программную шину текущее системное время, чтобы
// ds3231d можно было запустить без чипа.
func seedSim(a driver.Adapter, addr uint16) {
	sim, ok := a.(*i2cbus.Sim)
	if !ok {
		return
	}
	r, err := ds3231.EncodeTime(time.Now())
	if err != nil {
		return
	}
	for i, v := range r {
		sim.Set(addr, byte(i), v)
	}
}

func runHCToSys(d *ds3231.Device) error {
	if d.RTC() == nil {
		return fmt.Errorf("%s: not registered as rtc device", d.Name())
	}
	t, err := rtc.HCToSys(d.RTC())
	if err != nil {
		return err
	}
	logger.Info("%s: system clock set to %s", d.Name(), t.Format(time.RFC3339))
	return nil
}
