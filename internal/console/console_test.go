package console

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/shiwa/jetson-ds3231/internal/driver"
	"github.com/shiwa/jetson-ds3231/internal/i2cbus"
	"github.com/shiwa/jetson-ds3231/internal/rtc"
	"github.com/shiwa/jetson-ds3231/pkg/ds3231"
)

func newShell(t *testing.T) (*Shell, *i2cbus.Sim) {
	t.Helper()
	core := driver.NewCore()
	err := core.AddDriver(ds3231.NewDriver(ds3231.Options{
		Class:  rtc.NewClass(),
		Sleep:  func(time.Duration) {},
		Logger: zap.NewNop().Sugar(),
	}))
	if err != nil {
		t.Fatal(err)
	}
	bus := i2cbus.NewSim("1")
	// 2022-11-05 07:08:09
	for reg, v := range []byte{0x09, 0x08, 0x07, 0x07, 0x05, 0x11, 0x22} {
		bus.Set(ds3231.DefaultAddress, byte(reg), v)
	}
	bus.Set(ds3231.DefaultAddress, byte(ds3231.RegTempMSB), 0x15)
	bus.Set(ds3231.DefaultAddress, byte(ds3231.RegTempLSB), 0xc0)
	if _, err := core.NewClient(driver.BoardInfo{Type: "ds3231", Addr: ds3231.DefaultAddress}, bus); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = core.Shutdown() })
	return &Shell{
		List:    func() []*ds3231.Device { return ds3231.Bound(core) },
		Version: "test",
		Now:     func() time.Time { return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC) },
	}, bus
}

func TestExec(t *testing.T) {
	sh, bus := newShell(t)
	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"time", "2022-11-05T07:08:09Z\n", false},
		{"time rtc0", "2022-11-05T07:08:09Z\n", false},
		{"time rtc5", "", true},
		{"temp", "21.75 C\n", false},
		{"alarm", "disabled\n", false},
		{"list", "rtc0\tds3231-sim-1@0x68\n", false},
		{"version", "ds3231d test\n", false},
		{"set rtc0 2031-06-07T08:09:10Z", "2031-06-07T08:09:10Z\n", false},
		{"set rtc0 yesterday", "", true},
		{"set rtc0", "", true},
		{"set 'rtc0' now", "2023-01-01T00:00:00Z\n", false},
		{"reboot", "", true},
		{`time "unterminated`, "", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		quit, err := sh.Exec(tt.line, &out)
		if quit {
			t.Errorf("%q: unexpected quit", tt.line)
		}
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.line, err, tt.wantErr)
		}
		if !tt.wantErr && out.String() != tt.want {
			t.Errorf("%q: output %q, want %q", tt.line, out.String(), tt.want)
		}
	}
	if got := bus.Get(ds3231.DefaultAddress, byte(ds3231.RegYear)); got != 0x23 {
		t.Errorf("year register after set now = 0x%02x", got)
	}
}

func TestExecQuit(t *testing.T) {
	sh, _ := newShell(t)
	for _, line := range []string{"exit", "quit"} {
		quit, err := sh.Exec(line, &bytes.Buffer{})
		if !quit || err != nil {
			t.Errorf("%q: quit=%v err=%v", line, quit, err)
		}
	}
}

func TestShowAndHelp(t *testing.T) {
	sh, _ := newShell(t)
	var out bytes.Buffer
	if _, err := sh.Exec("show", &out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"name:        rtc0", "time:        2022-11-05T07:08:09Z", "temperature: 21.75 C", "alarm:       disabled"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("show output missing %q:\n%s", want, out.String())
		}
	}
	out.Reset()
	if _, err := sh.Exec("help", &out); err != nil {
		t.Fatal(err)
	}
	for name := range commands {
		if !strings.Contains(out.String(), name) {
			t.Errorf("help does not mention %q", name)
		}
	}
}

func TestInteract(t *testing.T) {
	sh, _ := newShell(t)
	var out bytes.Buffer
	sh.Interact(strings.NewReader("version\r\nbogus\nexit\ntime\n"), &out)
	s := out.String()
	if !strings.Contains(s, "ds3231d test\n") || !strings.Contains(s, "error: unknown command") {
		t.Errorf("unexpected session output:\n%s", s)
	}
	if strings.Contains(s, "2022-11-05") {
		t.Error("commands after exit were executed")
	}
}

func TestSSHExec(t *testing.T) {
	sh, _ := newShell(t)
	keyPath := filepath.Join(t.TempDir(), "host_key")
	srv, err := New(Config{HostKey: keyPath, Username: "admin", Password: "secret"}, sh)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(keyPath); err != nil {
		t.Fatalf("host key not written: %v", err)
	}
	// Повторный запуск загружает сохранённый ключ.
	if _, err := New(Config{HostKey: keyPath, Username: "admin", Password: "secret"}, sh); err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, ln) }()

	dial := func(pass string) (*ssh.Client, error) {
		return ssh.Dial("tcp", ln.Addr().String(), &ssh.ClientConfig{
			User:            "admin",
			Auth:            []ssh.AuthMethod{ssh.Password(pass)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         5 * time.Second,
		})
	}
	if _, err := dial("wrong"); err == nil {
		t.Fatal("login with wrong password succeeded")
	}
	client, err := dial("secret")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	out, err := sess.Output("time")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "2022-11-05T07:08:09Z\n" {
		t.Errorf("exec output %q", out)
	}
}

func TestNewRequiresAuth(t *testing.T) {
	sh, _ := newShell(t)
	if _, err := New(Config{HostKey: filepath.Join(t.TempDir(), "k")}, sh); err == nil {
		t.Error("expected error without authentication methods")
	}
}
