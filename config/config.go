// Package config loads the jdximcp YAML configuration.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"jdximcp/sysex"
)

var ErrInvalid = errors.New("config: invalid")

// Link kinds.
const (
	LinkMIDI   = "midi"
	LinkSerial = "serial"
)

type Config struct {
	Device Device `yaml:"device"`
	Link   Link   `yaml:"link"`
	Timing Timing `yaml:"timing"`

	// Catalog is a parameter table file. Empty uses the built-in table.
	Catalog string `yaml:"catalog"`

	// ProtocolLog is a capture file path. Empty disables the capture.
	ProtocolLog string `yaml:"protocol_log"`
	LogLevel    string `yaml:"log_level"`

	// Banks maps names to 14-bit bank select numbers.
	Banks map[string]int `yaml:"banks"`

	// Refresh lists RQ1 reads sent after every preset load.
	Refresh []Read `yaml:"refresh"`
}

// Read is one RQ1 block.
type Read struct {
	Address string `yaml:"address"`
	Size    int    `yaml:"size"`
}

type Device struct {
	// ID is the SysEx device id, 0x10 for unit 17.
	ID int `yaml:"id"`

	// Channel is the 1-based MIDI channel used for bank select and program change.
	Channel int `yaml:"channel"`

	// Model is the four-byte model id written as hex.
	Model string `yaml:"model"`

	// Manufacturer and Family must match the identity reply.
	Manufacturer int    `yaml:"manufacturer"`
	Family       string `yaml:"family"`
}

type Link struct {
	Kind   string `yaml:"kind"`
	Port   string `yaml:"port"` // case-insensitive substring of the port name
	Serial string `yaml:"serial"`
	Baud   int    `yaml:"baud"`
}

type Timing struct {
	MinGap          time.Duration `yaml:"min_gap"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	IdentifyTimeout time.Duration `yaml:"identify_timeout"`
}

// Default returns the settings for a JD-Xi on its USB MIDI port.
func Default() Config {
	return Config{
		Device: Device{
			ID:           int(sysex.DefaultDeviceID),
			Channel:      16,
			Model:        "00 00 00 0E",
			Manufacturer: int(sysex.RolandID),
			Family:       "0E 03",
		},
		Link: Link{
			Kind: LinkMIDI,
			Port: "JD-Xi",
			Baud: 31250,
		},
		Timing: Timing{
			MinGap:          2 * time.Millisecond,
			RequestTimeout:  time.Second,
			IdentifyTimeout: 2 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Device.ID < 0 || c.Device.ID > 0x7F {
		return fmt.Errorf("%w: device id %d", ErrInvalid, c.Device.ID)
	}
	if c.Device.Channel < 1 || c.Device.Channel > 16 {
		return fmt.Errorf("%w: channel %d, want 1..16", ErrInvalid, c.Device.Channel)
	}
	if c.Device.Manufacturer < 0 || c.Device.Manufacturer > 0x7F {
		return fmt.Errorf("%w: manufacturer 0x%X", ErrInvalid, c.Device.Manufacturer)
	}
	if _, err := c.Model(); err != nil {
		return err
	}
	if _, err := c.FamilyCode(); err != nil {
		return err
	}
	switch c.Link.Kind {
	case LinkMIDI:
	case LinkSerial:
		if c.Link.Serial == "" {
			return fmt.Errorf("%w: serial link needs link.serial", ErrInvalid)
		}
		if c.Link.Baud <= 0 {
			return fmt.Errorf("%w: baud %d", ErrInvalid, c.Link.Baud)
		}
	default:
		return fmt.Errorf("%w: link kind %q, want midi or serial", ErrInvalid, c.Link.Kind)
	}
	if c.Timing.MinGap < 0 || c.Timing.RequestTimeout <= 0 || c.Timing.IdentifyTimeout <= 0 {
		return fmt.Errorf("%w: timing %+v", ErrInvalid, c.Timing)
	}
	for _, r := range c.Refresh {
		if _, err := sysex.ParseAddress(r.Address); err != nil {
			return fmt.Errorf("%w: refresh: %w", ErrInvalid, err)
		}
		if r.Size <= 0 || r.Size > 0x7F {
			return fmt.Errorf("%w: refresh %s size %d", ErrInvalid, r.Address, r.Size)
		}
	}
	for name, bank := range c.Banks {
		if bank < 0 || bank > 0x3FFF {
			return fmt.Errorf("%w: bank %s = %d, want 0..16383", ErrInvalid, name, bank)
		}
	}
	return nil
}

// Header builds the SysEx header for the configured device.
func (c Config) Header() (sysex.Header, error) {
	model, err := c.Model()
	if err != nil {
		return sysex.Header{}, err
	}
	return sysex.Header{
		Manufacturer: byte(c.Device.Manufacturer),
		DeviceID:     byte(c.Device.ID),
		Model:        model,
	}, nil
}

// Model parses the four-byte model id.
func (c Config) Model() ([4]byte, error) {
	var m [4]byte
	b, err := hexBytes(c.Device.Model)
	if err != nil || len(b) != len(m) {
		return m, fmt.Errorf("%w: model %q", ErrInvalid, c.Device.Model)
	}
	copy(m[:], b)
	return m, nil
}

// FamilyCode parses the two-byte family code expected in identity replies.
func (c Config) FamilyCode() ([2]byte, error) {
	var f [2]byte
	b, err := hexBytes(c.Device.Family)
	if err != nil || len(b) != len(f) {
		return f, fmt.Errorf("%w: family %q", ErrInvalid, c.Device.Family)
	}
	copy(f[:], b)
	return f, nil
}

// Bank resolves a bank name or a decimal number.
func (c Config) Bank(s string) (int, error) {
	if n, ok := c.Banks[s]; ok {
		return n, nil
	}
	for name, n := range c.Banks {
		if strings.EqualFold(name, s) {
			return n, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown bank %q", ErrInvalid, s)
	}
	if n < 0 || n > 0x3FFF {
		return 0, fmt.Errorf("%w: bank %d, want 0..16383", ErrInvalid, n)
	}
	return n, nil
}

func hexBytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return nil, err
	}
	for _, v := range b {
		if v > 0x7F {
			return nil, fmt.Errorf("byte 0x%02X exceeds 7 bits", v)
		}
	}
	return b, nil
}
