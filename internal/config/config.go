// Copyright 2026 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides the settings shared by the provisioning stages.
// A Config is built once at startup and passed by value to each stage, so
// tests can point the stages at fake endpoints and scratch directories.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/boardfarm/bspflash/api"
	"gopkg.in/yaml.v2"
)

const (
	// GiB is one binary gigabyte.
	GiB = int64(1) << 30
	// MiB is one binary megabyte.
	MiB = int64(1) << 20
)

// Config holds the endpoints, paths and limits used by a provisioning run.
type Config struct {
	// IdentityFile is the JSON file holding the board's hostname.
	IdentityFile string `yaml:"IdentityFile"`
	// BootHelper is the serial-boot helper command line, without arguments.
	BootHelper []string `yaml:"BootHelper"`
	// Fastboot is the flashing client command line, without arguments.
	Fastboot []string `yaml:"Fastboot"`
	// FastbootPort is the UDP port the board's fastboot server listens on.
	FastbootPort int `yaml:"FastbootPort"`

	// ListingURL is the storage API folder holding the daily BSP packages.
	ListingURL string `yaml:"ListingURL"`
	// DownloadURL is the folder that package names are appended to for download.
	DownloadURL string `yaml:"DownloadURL"`
	// PackageSuffix must end every candidate package name.
	PackageSuffix string `yaml:"PackageSuffix"`
	// PackageMarker must appear somewhere in every candidate package name.
	PackageMarker string `yaml:"PackageMarker"`

	ProbeTimeout    time.Duration `yaml:"ProbeTimeout"`
	ListTimeout     time.Duration `yaml:"ListTimeout"`
	DownloadTimeout time.Duration `yaml:"DownloadTimeout"`
	// MinFreeBytes is the free space below which a download only warns.
	MinFreeBytes int64 `yaml:"MinFreeBytes"`

	RetryAttempts int           `yaml:"RetryAttempts"`
	RetryDelay    time.Duration `yaml:"RetryDelay"`

	// SparseLimitBytes enables "-S SparseChunk" for images larger than it.
	// Zero disables sparse transfers.
	SparseLimitBytes int64  `yaml:"SparseLimitBytes"`
	SparseChunk      string `yaml:"SparseChunk"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		IdentityFile:  "/dev/serial/by-name/cicd-vw/device.json",
		BootHelper:    []string{"uartboot"},
		Fastboot:      []string{"fastboot"},
		FastbootPort:  5554,
		ListingURL:    "https://jfrog.carizon.work/artifactory/api/storage/project-snapshot-local/Dev/Common/j6/bsp/daily/Release",
		DownloadURL:   "https://jfrog.carizon.work/artifactory/project-snapshot-local/Dev/Common/j6/bsp/daily/Release",
		PackageSuffix: "-daily.zip",
		PackageMarker: "bsp",

		ProbeTimeout:    10 * time.Second,
		ListTimeout:     30 * time.Second,
		DownloadTimeout: 600 * time.Second,
		MinFreeBytes:    3 * GiB,

		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,

		SparseChunk: "32M",
	}
}

// Load reads a YAML config file. Fields absent from the file keep their
// Default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, api.ConfigError{Path: path, Wrapped: fmt.Errorf("failed to read file: %w", err)}
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return Config{}, api.ConfigError{Path: path, Wrapped: fmt.Errorf("failed to unmarshal config: %w", err)}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, api.ConfigError{Path: path, Wrapped: err}
	}
	return cfg, nil
}

// Validate checks that the config can drive a run.
func (c Config) Validate() error {
	if c.IdentityFile == "" {
		return errors.New("missing field: IdentityFile")
	}
	if len(c.BootHelper) == 0 || c.BootHelper[0] == "" {
		return errors.New("missing field: BootHelper")
	}
	if len(c.Fastboot) == 0 || c.Fastboot[0] == "" {
		return errors.New("missing field: Fastboot")
	}
	if c.FastbootPort <= 0 || c.FastbootPort > 65535 {
		return fmt.Errorf("FastbootPort %d out of range", c.FastbootPort)
	}
	for name, u := range map[string]string{"ListingURL": c.ListingURL, "DownloadURL": c.DownloadURL} {
		if u == "" {
			return fmt.Errorf("missing field: %s", name)
		}
		if _, err := url.Parse(u); err != nil {
			return fmt.Errorf("unparseable %s: %v", name, err)
		}
	}
	if c.PackageSuffix == "" {
		return errors.New("missing field: PackageSuffix")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RetryAttempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("RetryDelay must not be negative, got %v", c.RetryDelay)
	}
	if c.SparseLimitBytes > 0 && c.SparseChunk == "" {
		return errors.New("SparseLimitBytes set without SparseChunk")
	}
	return nil
}
