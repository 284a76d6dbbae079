package theme

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type RGB [3]uint8

// Palette is an ordered color ramp; Lookup interpolates along it.
type Palette struct {
	Name   string
	Colors []RGB
}

// Plasma is the built-in ramp, dark purple through magenta to yellow.
func Plasma() *Palette {
	return &Palette{
		Name: "Plasma",
		Colors: []RGB{
			{0x0d, 0x08, 0x87}, {0x41, 0x04, 0x9d}, {0x6a, 0x00, 0xa8},
			{0x8f, 0x0d, 0xa4}, {0xb1, 0x2a, 0x90}, {0xcc, 0x47, 0x78},
			{0xe1, 0x64, 0x62}, {0xf2, 0x84, 0x4b}, {0xfc, 0xa6, 0x36},
			{0xfc, 0xce, 0x25}, {0xf0, 0xf9, 0x21},
		},
	}
}

// parseSwatch reads the leading "R G B" of a GIMP palette entry.
func parseSwatch(line string) (RGB, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return RGB{}, false
	}
	var c RGB
	for i := range c {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 || v > 255 {
			return RGB{}, false
		}
		c[i] = uint8(v)
	}
	return c, true
}

// LoadGPL reads a GIMP palette file. Entries that are not three bytes are
// skipped.
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := &Palette{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "", line[0] == '#', strings.HasPrefix(line, "GIMP"), strings.HasPrefix(line, "Columns"):
		case strings.HasPrefix(line, "Name:"):
			p.Name = strings.TrimSpace(line[len("Name:"):])
		default:
			if c, ok := parseSwatch(line); ok {
				p.Colors = append(p.Colors, c)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("palette %s has no colors", path)
	}
	return p, nil
}

// LoadOrDefault loads path, falling back to Plasma when path is empty or
// unreadable. The error reports why the fallback was used.
func LoadOrDefault(path string) (*Palette, error) {
	if path == "" {
		return Plasma(), nil
	}
	p, err := LoadGPL(path)
	if err != nil {
		return Plasma(), fmt.Errorf("load palette: %w", err)
	}
	return p, nil
}

// Lookup returns the color at norm in [0,1], blending neighbours.
func (p *Palette) Lookup(norm float64) RGB {
	last := len(p.Colors) - 1
	if last == 0 || !(norm > 0) {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[last]
	}
	pos := norm * float64(last)
	i := int(pos)
	a, b := p.Colors[i], p.Colors[i+1]
	frac := pos - float64(i)

	var out RGB
	for ch := range out {
		out[ch] = uint8(math.Round(float64(a[ch]) + (float64(b[ch])-float64(a[ch]))*frac))
	}
	return out
}
