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

// Package impl is the implementation of the bspflash provisioning tool.
package impl

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/boardfarm/bspflash/api"
	"github.com/boardfarm/bspflash/internal/board"
	"github.com/boardfarm/bspflash/internal/boot"
	"github.com/boardfarm/bspflash/internal/bsp"
	"github.com/boardfarm/bspflash/internal/config"
	"github.com/boardfarm/bspflash/internal/flash"
	"github.com/boardfarm/bspflash/internal/retry"
	"github.com/golang/glog"
)

// Opts encapsulates the bspflash parameters.
type Opts struct {
	ConfigFile string
	// FirmwarePath overrides the board table's boot-stage firmware directory.
	FirmwarePath string
	// Board overrides the hostname read from the identity file.
	Board string
	Mode  string

	UARTOnly bool
	BSPOnly  bool
	IP       string
	Reboot   bool

	// Stdin and Stdout are the operator's terminal.
	Stdin  io.Reader
	Stdout io.Writer
}

func (o Opts) validate() error {
	if o.UARTOnly && o.BSPOnly {
		return api.InputError{Reason: "--uart-only and --bsp-only are mutually exclusive"}
	}
	if o.BSPOnly && o.IP == "" {
		return api.InputError{Reason: "--bsp-only requires --ip"}
	}
	if o.IP != "" {
		return boot.ValidateAddress(o.IP)
	}
	return nil
}

// Main runs the provisioning pipeline: boot, address discovery, package
// download and flashing. Each stage only starts once the previous one
// succeeded.
func Main(ctx context.Context, opts Opts) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Mode == "" {
		opts.Mode = boot.ModeGotoUART
	}
	out := opts.Stdout

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	hostname, err := board.ResolveHostname(opts.Board, cfg.IdentityFile)
	if err != nil {
		return err
	}
	fw := opts.FirmwarePath
	if fw == "" {
		fw = board.FirmwarePath(hostname)
	}
	fmt.Fprintf(out, "Board %s, firmware %s\n", hostname, fw)

	addr := opts.IP
	if !opts.BSPOnly {
		if addr, err = bootBoard(ctx, cfg, opts, fw, hostname); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Board IP address: %s\n", addr)
	if opts.UARTOnly {
		return nil
	}

	dest, err := fetchPackage(ctx, cfg, out, fw)
	if err != nil {
		return err
	}

	banner(out, "Flashing %s to %s", dest, addr)
	f := &flash.Flasher{
		Runner: flash.ExecRunner{Command: cfg.Fastboot, Output: out},
		Retry:  retry.Policy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay},
		Addr:   addr,
		Port:   cfg.FastbootPort,
		Plan: flash.PlanOptions{
			SparseLimitBytes: cfg.SparseLimitBytes,
			SparseChunk:      cfg.SparseChunk,
		},
		Reboot: opts.Reboot,
	}
	state, err := f.Flash(ctx, dest, hostname)
	if err != nil {
		return fmt.Errorf("flashing ended in state %v: %w", state, err)
	}
	banner(out, "Board %s provisioned", hostname)
	return nil
}

// bootBoard runs the serial-boot helper and returns the address the board
// announced, the operator's --ip, or the operator's answer to a prompt.
func bootBoard(ctx context.Context, cfg config.Config, opts Opts, fw, hostname string) (string, error) {
	banner(opts.Stdout, "Booting %s over UART (%s)", hostname, opts.Mode)
	var d *boot.Driver
	if f, ok := opts.Stdout.(*os.File); ok {
		d = boot.NewDriver(cfg.BootHelper, f, opts.Stdin)
	} else {
		d = &boot.Driver{Helper: cfg.BootHelper, Console: opts.Stdout, Stdin: opts.Stdin}
	}
	res, err := d.Run(ctx, fw, hostname, opts.Mode)
	if err != nil {
		return "", fmt.Errorf("boot stage: %w", err)
	}
	if opts.IP != "" {
		return opts.IP, nil
	}
	if addr := boot.ExtractAddress(res.Output); addr != "" {
		return addr, nil
	}
	glog.Warning("No board address in the boot output")
	return boot.PromptAddress(opts.Stdin, opts.Stdout)
}

// fetchPackage downloads and unpacks the newest package, returning the
// extraction directory.
func fetchPackage(ctx context.Context, cfg config.Config, out io.Writer, fw string) (string, error) {
	listing, err := url.Parse(cfg.ListingURL)
	if err != nil {
		return "", api.ConfigError{Path: "ListingURL", Wrapped: err}
	}
	download, err := url.Parse(cfg.DownloadURL)
	if err != nil {
		return "", api.ConfigError{Path: "DownloadURL", Wrapped: err}
	}
	c := &bsp.Client{
		ListingURL:   listing,
		Suffix:       cfg.PackageSuffix,
		Marker:       cfg.PackageMarker,
		ProbeTimeout: cfg.ProbeTimeout,
		ListTimeout:  cfg.ListTimeout,
	}

	banner(out, "Looking for the latest package in %s", listing)
	name, err := c.LatestName(ctx)
	if err != nil {
		return "", fmt.Errorf("package lookup: %w", err)
	}
	banner(out, "Downloading %s", name)
	f := &bsp.Fetcher{
		Client:          c,
		DownloadURL:     download,
		FirmwarePath:    fw,
		DownloadTimeout: cfg.DownloadTimeout,
		MinFreeBytes:    cfg.MinFreeBytes,
		Progress:        out,
	}
	dest, err := f.DownloadAndExtract(ctx, name)
	if err != nil {
		return "", fmt.Errorf("package fetch: %w", err)
	}
	return dest, nil
}

func banner(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "==> "+format+"\n", args...)
}
