// Package config loads a device description from YAML.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fuxunyang/USBDevice/pkg"
	"github.com/fuxunyang/USBDevice/usbd"
)

// Config is the YAML device description.
type Config struct {
	Vendor  VendorConfig  `yaml:"vendor"`
	Product ProductConfig `yaml:"product"`
	Serial  string        `yaml:"serial"` // 12 hex digits (6 bytes)
	Power   PowerConfig   `yaml:"power"`
}

type VendorConfig struct {
	Name string `yaml:"name"`
	ID   uint16 `yaml:"id"`
}

type ProductConfig struct {
	Name         string `yaml:"name"`
	ID           uint16 `yaml:"id"`
	VersionMajor uint8  `yaml:"version_major"`
	VersionMinor uint8  `yaml:"version_minor"`
	ConfigName   string `yaml:"config_name"`
}

type PowerConfig struct {
	MaxCurrentMA uint16 `yaml:"max_current_ma"`
	SelfPowered  bool   `yaml:"self_powered"`
	RemoteWakeup bool   `yaml:"remote_wakeup"`
}

// Load reads and parses a YAML device description from path.
func Load(path string) (*usbd.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML device description and returns the validated
// Description.
func Parse(data []byte) (*usbd.Description, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return build(&cfg)
}

// Validate checks configuration correctness. It does not mutate the
// configuration.
func Validate(cfg *Config) error {
	if cfg.Vendor.ID == 0 {
		return fmt.Errorf("vendor.id must be nonzero")
	}
	if cfg.Product.ID == 0 {
		return fmt.Errorf("product.id must be nonzero")
	}
	if cfg.Vendor.Name == "" {
		return fmt.Errorf("vendor.name must not be empty")
	}
	if cfg.Product.Name == "" {
		return fmt.Errorf("product.name must not be empty")
	}
	if cfg.Power.MaxCurrentMA < 2 || cfg.Power.MaxCurrentMA > 500 {
		return fmt.Errorf("power.max_current_ma must be in 2..500, got %d",
			cfg.Power.MaxCurrentMA)
	}
	raw, err := hex.DecodeString(cfg.Serial)
	if err != nil {
		return fmt.Errorf("serial must be hex digits: %w", err)
	}
	if len(raw) != usbd.SerialNumberSize {
		return fmt.Errorf("serial must be exactly %d bytes (%d hex digits), got %d bytes",
			usbd.SerialNumberSize, usbd.SerialNumberSize*2, len(raw))
	}
	return nil
}

// build converts a validated Config into a Description.
func build(cfg *Config) (*usbd.Description, error) {
	raw, err := hex.DecodeString(cfg.Serial)
	if err != nil {
		return nil, fmt.Errorf("serial must be hex digits: %w", err)
	}

	var desc usbd.Description
	desc.Vendor.Name = cfg.Vendor.Name
	desc.Vendor.ID = cfg.Vendor.ID
	desc.Product.Name = cfg.Product.Name
	desc.Product.ID = cfg.Product.ID
	desc.Product.Version = usbd.NewVersion(cfg.Product.VersionMajor, cfg.Product.VersionMinor)
	copy(desc.SerialNumber[:], raw)
	desc.Config.Name = cfg.Product.ConfigName
	if desc.Config.Name == "" {
		desc.Config.Name = cfg.Product.Name
	}
	desc.Config.MaxCurrentMA = cfg.Power.MaxCurrentMA
	desc.Config.SelfPowered = cfg.Power.SelfPowered
	desc.Config.RemoteWakeup = cfg.Power.RemoteWakeup

	pkg.LogDebug(pkg.ComponentConfig, "description loaded",
		"vendor", desc.Vendor.Name, "product", desc.Product.Name)
	return &desc, nil
}
