package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/shiwa/jetson-ds3231/pkg/ds3231"
)

// Shell выполняет команды консоли над списком устройств.
type Shell struct {
	List    func() []*ds3231.Device
	Version string
	// Now — источник системного времени (nil — time.Now).
	Now func() time.Time
}

type command struct {
	usage string
	help  string
	run   func(s *Shell, w io.Writer, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {"help", "list commands", (*Shell).help},
		"list":    {"list", "list bound devices", (*Shell).list},
		"show":    {"show [name]", "full device status", (*Shell).show},
		"time":    {"time [name]", "read the clock", (*Shell).readTime},
		"temp":    {"temp [name]", "read the temperature sensor", (*Shell).temp},
		"alarm":   {"alarm [name]", "read the wake alarm", (*Shell).alarm},
		"set":     {"set <name> <RFC3339|now>", "set the clock", (*Shell).set},
		"systohc": {"systohc [name]", "write system time to the clock", (*Shell).systohc},
		"version": {"version", "daemon version", (*Shell).version},
	}
}

// Exec разбирает строку и выполняет команду. quit — запрошен выход.
func (s *Shell) Exec(line string, w io.Writer) (quit bool, err error) {
	args, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return false, nil
	}
	switch args[0] {
	case "exit", "quit":
		return true, nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return false, fmt.Errorf("unknown command %q, try help", args[0])
	}
	return false, cmd.run(s, w, args[1:])
}

func (s *Shell) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// device выбирает устройство по имени; без имени — единственное устройство.
func (s *Shell) device(args []string) (*ds3231.Device, error) {
	devs := s.List()
	if len(args) == 0 {
		switch len(devs) {
		case 0:
			return nil, fmt.Errorf("no devices")
		case 1:
			return devs[0], nil
		default:
			return nil, fmt.Errorf("%d devices bound, name one", len(devs))
		}
	}
	d, ok := ds3231.Find(devs, args[0])
	if !ok {
		return nil, fmt.Errorf("no such device: %s", args[0])
	}
	return d, nil
}

func (s *Shell) help(w io.Writer, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-26s %s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(w, "  %-26s %s\n", "exit", "close the session")
	return nil
}

func (s *Shell) list(w io.Writer, _ []string) error {
	for _, d := range s.List() {
		fmt.Fprintf(w, "%s\t%s\n", d.Name(), d.Client())
	}
	return nil
}

func (s *Shell) show(w io.Writer, args []string) error {
	d, err := s.device(args)
	if err != nil {
		return err
	}
	sn := d.Snapshot()
	fmt.Fprintf(w, "name:        %s\n", sn.Name)
	fmt.Fprintf(w, "client:      %s\n", sn.Client)
	if sn.Time != nil {
		fmt.Fprintf(w, "time:        %s\n", sn.Time.Format(time.RFC3339))
	}
	if sn.SystemOffsetMs != nil {
		fmt.Fprintf(w, "offset:      %.1f ms\n", *sn.SystemOffsetMs)
	}
	if sn.TemperatureC != nil {
		fmt.Fprintf(w, "temperature: %.2f C\n", *sn.TemperatureC)
	}
	if sn.AgingOffset != nil {
		fmt.Fprintf(w, "aging:       %d\n", *sn.AgingOffset)
	}
	if sn.Alarm != nil {
		fmt.Fprintf(w, "alarm:       %s\n", formatAlarm(sn.Alarm.Enabled, sn.Alarm.Pending, sn.Alarm.Time))
	}
	fmt.Fprintf(w, "control:     0x%02x\n", sn.Control)
	fmt.Fprintf(w, "status:      0x%02x\n", sn.Status)
	if sn.OscillatorStopped {
		fmt.Fprintln(w, "warning:     oscillator stopped, time is not valid")
	}
	for _, e := range sn.Errors {
		fmt.Fprintf(w, "error:       %s\n", e)
	}
	return nil
}

func formatAlarm(enabled, pending bool, t time.Time) string {
	var b strings.Builder
	if enabled {
		b.WriteString("enabled")
	} else {
		b.WriteString("disabled")
	}
	if pending {
		b.WriteString(", pending")
	}
	if !t.IsZero() {
		b.WriteString(", at ")
		b.WriteString(t.Format(time.RFC3339))
	}
	return b.String()
}

func (s *Shell) readTime(w io.Writer, args []string) error {
	d, err := s.device(args)
	if err != nil {
		return err
	}
	t, err := d.Clock().ReadTime()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, t.Format(time.RFC3339))
	return nil
}

func (s *Shell) temp(w io.Writer, args []string) error {
	d, err := s.device(args)
	if err != nil {
		return err
	}
	c, err := d.Temperature()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%.2f C\n", c)
	return nil
}

func (s *Shell) alarm(w io.Writer, args []string) error {
	d, err := s.device(args)
	if err != nil {
		return err
	}
	a, err := d.Clock().ReadAlarm()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, formatAlarm(a.Enabled, a.Pending, a.Time))
	return nil
}

func (s *Shell) set(w io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s", commands["set"].usage)
	}
	d, err := s.device(args[:1])
	if err != nil {
		return err
	}
	if args[1] == "now" {
		if err := d.SetTimeFromSystem(s.now()); err != nil {
			return err
		}
	} else {
		t, err := time.Parse(time.RFC3339, args[1])
		if err != nil {
			return err
		}
		if err := d.Clock().SetTime(t); err != nil {
			return err
		}
	}
	return s.readTime(w, args[:1])
}

func (s *Shell) systohc(w io.Writer, args []string) error {
	d, err := s.device(args)
	if err != nil {
		return err
	}
	if err := d.SetTimeFromSystem(s.now()); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s set from system time\n", d.Name())
	return nil
}

func (s *Shell) version(w io.Writer, _ []string) error {
	fmt.Fprintf(w, "ds3231d %s\n", s.Version)
	return nil
}
