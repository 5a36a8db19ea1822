// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the aquastat YAML file. Every section is optional;
// missing values fall back to Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/screen"
)

// Config is the whole file
type Config struct {
	Panel    PanelConfig    `yaml:"panel"`
	Timing   TimingConfig   `yaml:"timing"`
	Devices  []DeviceConfig `yaml:"devices"`
	Menus    MenusConfig    `yaml:"menus"`
	HABridge HABridgeConfig `yaml:"habridge"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Web      WebConfig      `yaml:"web"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

// ---- PANEL ----

type PanelConfig struct {
	Mode     string `yaml:"mode"` // pda or keypad
	DeviceID uint8  `yaml:"device_id"`

	SleepMode         bool `yaml:"sleep_mode"`
	UsePanelAuxLabels bool `yaml:"use_panel_aux_labels"`
}

// ---- TIMING ----

type TimingConfig struct {
	SessionTimeout   time.Duration `yaml:"session_timeout"`
	AckTimeout       time.Duration `yaml:"ack_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	MessageQuiet     time.Duration `yaml:"message_quiet"`
	NumericMaxSteps  int           `yaml:"numeric_max_steps"`
	SubMenuTries     int           `yaml:"sub_menu_tries"`
	MenuTries        int           `yaml:"menu_tries"`

	LightInitialOn  time.Duration `yaml:"light_initial_on"`
	LightInitialOff time.Duration `yaml:"light_initial_off"`
	LightPause      time.Duration `yaml:"light_pause"`
}

// ---- DEVICES ----

// DeviceConfig overrides labels of one device in the built-in table.
// Empty fields keep the default.
type DeviceConfig struct {
	Name      string `yaml:"name"`
	Label     string `yaml:"label"`
	MenuLabel string `yaml:"menu_label"`
	HabID     string `yaml:"hab_id"`
}

// ---- MENUS ----

// MenusConfig adjusts screen recognition and PDA navigation for panel
// models whose menus differ from the built-in ones
type MenusConfig struct {
	// Rules are tried before the built-in catalog
	Rules []MenuRule `yaml:"rules"`

	// Paths replace built-in PDA paths, keyed by menu name
	Paths map[string]navigator.MenuPath `yaml:"paths"`
}

type MenuRule struct {
	Menu      string             `yaml:"menu"`
	All       []screen.LineMatch `yaml:"all"`
	Any       []screen.LineMatch `yaml:"any"`
	Highlight string             `yaml:"highlight"` // any, none or set
}

// ---- OUTER SURFACES ----

type HABridgeConfig struct {
	Server string `yaml:"server"` // host[:port]; empty disables the bridge
	User   string `yaml:"user"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // tcp://host:1883; empty disables MQTT
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

type WebConfig struct {
	Listen string `yaml:"listen"` // empty disables the web server
}

type HistoryConfig struct {
	Path         string `yaml:"path"` // empty disables history
	Temperatures bool   `yaml:"temperatures"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration for a PDA remote with every optional
// surface disabled
func Default() *Config {
	cfg := &Config{}
	cfg.normalize()
	return cfg
}

// Load reads and validates a config file
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, normalizes and validates a config document. An empty
// document yields Default.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
