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

// bspflash provisions a board: it boots the board into fastboot over the
// serial link, downloads the newest daily BSP package and flashes it.
//
// Usage:
//
//	bspflash [-b j6e-evb] [-u /path/to/uart_boot] [--ip 192.168.2.62] [--bsp-only | --uart-only]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/boardfarm/bspflash/cmd/bspflash/impl"
	"github.com/boardfarm/bspflash/internal/board"
	"github.com/boardfarm/bspflash/internal/boot"
	"github.com/golang/glog"
)

func init() {
	flag.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(w, "  %s [flags]\n", os.Args[0])
		fmt.Fprintf(w, "  Boots the board over UART, then flashes the latest BSP package over fastboot.\n\n")
		fmt.Fprintf(w, "Supported boards (-b):\n")
		for _, b := range board.All() {
			if b == board.Default {
				continue
			}
			fmt.Fprintf(w, "  %-10s %s\n", b.Hostname(), b.FirmwarePath())
		}
		fmt.Fprintf(w, "  other      %s\n\n", board.Default.FirmwarePath())
		flag.PrintDefaults()
	}
}

func main() {
	var opts impl.Opts
	flag.StringVar(&opts.FirmwarePath, "package", "", "Boot-stage firmware directory, overriding the board table")
	flag.StringVar(&opts.FirmwarePath, "u", "", "Shorthand for --package")
	flag.StringVar(&opts.Board, "board", "", "Board hostname, overriding the identity file")
	flag.StringVar(&opts.Board, "b", "", "Shorthand for --board")
	flag.StringVar(&opts.Mode, "type", boot.ModeGotoUART, "Boot mode passed to the serial-boot helper")
	flag.StringVar(&opts.Mode, "t", boot.ModeGotoUART, "Shorthand for --type")
	flag.BoolVar(&opts.UARTOnly, "uart-only", false, "Stop once the board address is known")
	flag.BoolVar(&opts.BSPOnly, "bsp-only", false, "Skip the serial boot; requires --ip")
	flag.StringVar(&opts.IP, "ip", "", "Board IP address, skipping detection")
	flag.StringVar(&opts.ConfigFile, "config", "", "Optional YAML file overriding endpoints, commands and limits")
	flag.BoolVar(&opts.Reboot, "reboot", false, "Reboot the board after a successful flash")

	if err := flag.Set("logtostderr", "true"); err != nil {
		glog.Exitf("Failed to default --logtostderr: %v", err)
	}
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		glog.Exitf("Unexpected arguments: %q", flag.Args())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts.Stdin = os.Stdin
	opts.Stdout = os.Stdout
	if err := impl.Main(ctx, opts); err != nil {
		glog.Exitf("bspflash failed: %v", err)
	}
}
