// Package config loads CockpitVM's host configuration from a TOML file,
// grounded directly on the teacher's cmd/gprobe/config.go: the same
// naoina/toml settings object (field names verbatim, no casing
// transform), the same bufio.Reader-backed decode, and the same
// *toml.LineError unwrapping to prefix the offending file name.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
)

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s#%s", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// TransportConfig selects and configures the host-side transport (spec §9
// "polymorphism over the transport").
type TransportConfig struct {
	Kind     string `toml:",omitempty"` // "serial", "npipe", "usb"
	Device   string `toml:",omitempty"`
	BaudRate uint32 `toml:",omitempty"`
}

// FlashConfig mirrors the fixed flash layout spec §6 requires (bank
// addresses, page size).
type FlashConfig struct {
	BankAAddress uint32
	BankBAddress uint32
	TestPageAddr uint32
	PageSize     uint32
}

// TimeoutConfig overrides the spec §5 default session/frame timeouts.
type TimeoutConfig struct {
	SessionTimeoutMs uint32 `toml:",omitempty"`
	FrameTimeoutMs   uint32 `toml:",omitempty"`
}

// DebugServerConfig configures the optional REST+WS telemetry surface.
type DebugServerConfig struct {
	Enabled bool
	Addr    string `toml:",omitempty"`
}

// Config is the root host configuration document.
type Config struct {
	Transport   TransportConfig
	Flash       FlashConfig
	Timeouts    TimeoutConfig
	DebugServer DebugServerConfig
}

// Default returns the built-in configuration used when no TOML file is
// supplied, matching the spec's flash layout (spec §6: bank A/B 32 KiB
// each, 2 KiB test page, 2 KiB page size).
func Default() Config {
	return Config{
		Transport: TransportConfig{Kind: "serial", BaudRate: 115_200},
		Flash: FlashConfig{
			BankAAddress: 0x08008000,
			BankBAddress: 0x08010000,
			TestPageAddr: 0x08006000,
			PageSize:     2048,
		},
		Timeouts: TimeoutConfig{SessionTimeoutMs: 30_000, FrameTimeoutMs: 500},
	}
}

// Load reads and decodes a TOML configuration file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return cfg, err
}
