// Package devicetree ищет I2C-устройства в flattened device tree (DTB) и
// превращает подходящие узлы в driver.BoardInfo.
package devicetree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/u-root/u-root/pkg/dt"

	"github.com/shiwa/jetson-ds3231/internal/driver"
)

// DefaultPath — DTB, который ядро экспортирует в sysfs.
const DefaultPath = "/sys/firmware/fdt"

// Device — найденный узел I2C-устройства.
type Device struct {
	driver.BoardInfo
	Bus string // имя шины из /aliases, например "i2c-1"; пусто, если алиаса нет
}

// Load читает DTB из файла.
func Load(file string) (*dt.FDT, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fdt, err := dt.ReadFDT(f)
	if err != nil {
		return nil, fmt.Errorf("read fdt %s: %w", file, err)
	}
	return fdt, nil
}

// Scan обходит дерево и возвращает узлы, compatible которых содержит одну из
// строк table. Узлы со status, отличным от "okay"/"ok", пропускаются.
func Scan(fdt *dt.FDT, table []string) ([]Device, error) {
	if fdt == nil || fdt.RootNode == nil {
		return nil, fmt.Errorf("devicetree: empty tree")
	}
	aliases := busAliases(fdt.RootNode)

	var out []Device
	var walk func(n *dt.Node, dir string) error
	walk = func(n *dt.Node, dir string) error {
		p := path.Join(dir, n.Name)
		if n == fdt.RootNode {
			p = "/"
		}
		if compat := Compatible(n); matches(compat, table) && enabled(n) {
			d, err := device(n, p, compat)
			if err != nil {
				return err
			}
			d.Bus = aliases[dir]
			out = append(out, d)
		}
		for _, c := range n.Children {
			if err := walk(c, p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(fdt.RootNode, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// Compatible возвращает список строк свойства compatible узла.
func Compatible(n *dt.Node) []string {
	p, ok := n.LookProperty("compatible")
	if !ok {
		return nil
	}
	return stringList(p.Value)
}

func stringList(v []byte) []string {
	var out []string
	for _, s := range bytes.Split(bytes.TrimRight(v, "\x00"), []byte{0}) {
		if len(s) > 0 {
			out = append(out, string(s))
		}
	}
	return out
}

func matches(compat, table []string) bool {
	for _, c := range compat {
		for _, t := range table {
			if c == t {
				return true
			}
		}
	}
	return false
}

func enabled(n *dt.Node) bool {
	p, ok := n.LookProperty("status")
	if !ok {
		return true
	}
	s := strings.TrimRight(string(p.Value), "\x00")
	return s == "okay" || s == "ok"
}

func device(n *dt.Node, p string, compat []string) (Device, error) {
	reg, ok := n.LookProperty("reg")
	if !ok {
		return Device{}, fmt.Errorf("devicetree: %s: missing reg", p)
	}
	addr, err := reg.AsU32()
	if err != nil {
		return Device{}, fmt.Errorf("devicetree: %s: reg: %w", p, err)
	}
	d := Device{BoardInfo: driver.BoardInfo{
		Type:       legacyName(compat[0]),
		Addr:       uint16(addr),
		Compatible: compat,
		OFPath:     p,
	}}
	if irq, ok := n.LookProperty("interrupts"); ok && len(irq.Value) >= 4 {
		d.IRQ = int(binary.BigEndian.Uint32(irq.Value))
	}
	return d, nil
}

// legacyName отрезает префикс производителя: "maxim,ds3231" -> "ds3231".
func legacyName(compat string) string {
	if i := strings.IndexByte(compat, ','); i >= 0 {
		return compat[i+1:]
	}
	return compat
}

// busAliases строит отображение пути узла контроллера в имя шины по /aliases:
// i2c1 = "/i2c@7000c400" -> "/i2c@7000c400": "i2c-1".
func busAliases(root *dt.Node) map[string]string {
	out := make(map[string]string)
	for _, c := range root.Children {
		if c.Name != "aliases" {
			continue
		}
		for _, p := range c.Properties {
			if !strings.HasPrefix(p.Name, "i2c") {
				continue
			}
			n, err := strconv.Atoi(strings.TrimPrefix(p.Name, "i2c"))
			if err != nil {
				continue
			}
			target := strings.TrimRight(string(p.Value), "\x00")
			out[target] = "i2c-" + strconv.Itoa(n)
		}
	}
	return out
}
