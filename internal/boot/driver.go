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

// Package boot drives a board into its boot loader through the serial-boot
// helper, and finds out which network address the board came up on.
package boot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"bitbucket.org/creachadair/shell"
	"github.com/boardfarm/bspflash/api"
	"github.com/golang/glog"
	"golang.org/x/term"
)

// Modes accepted by the serial-boot helper.
const (
	ModeGotoUART = "mcu goto uart"
	ModeReboot   = "mcu reboot"
	ModeManual   = "manual operation"
)

// Result is what a helper run left behind.
type Result struct {
	ExitCode int
	// Output is everything the helper wrote to stdout and stderr.
	Output string
}

// Driver runs the serial-boot helper.
type Driver struct {
	// Helper is the helper command line; boot arguments are appended to it.
	Helper []string
	// Console receives the helper output as it is produced.
	Console io.Writer
	// Stdin is passed through to the helper, which may ask the operator to
	// power-cycle the board.
	Stdin io.Reader
	// PTY runs the helper under script(1) so it sees a terminal and keeps
	// its progress rendering.
	PTY bool
	// TempDir holds the capture file. Empty means os.TempDir().
	TempDir string
}

// NewDriver returns a Driver writing to console. The pseudo-terminal wrapper
// is enabled when console is an interactive terminal.
func NewDriver(helper []string, console *os.File, stdin io.Reader) *Driver {
	return &Driver{
		Helper:  helper,
		Console: console,
		Stdin:   stdin,
		PTY:     term.IsTerminal(int(console.Fd())),
	}
}

// command returns the program and arguments to execute.
func (d *Driver) command(firmwarePath, hostname, mode string) (string, []string) {
	args := append(append([]string{}, d.Helper[1:]...), "-u", firmwarePath, "-b", hostname, "-t", mode)
	if !d.PTY {
		return d.Helper[0], args
	}
	line := shell.Join(append([]string{d.Helper[0]}, args...))
	return "script", []string{"-q", "-e", "-f", "-c", line, "/dev/null"}
}

// Run invokes the helper for the given firmware, hostname and boot mode and
// waits for it to exit. The helper output is shown on the console while a
// copy is kept in a temporary capture file, which is removed before Run
// returns. A non-zero exit is reported as an api.BootError; the returned
// Result is populated either way.
func (d *Driver) Run(ctx context.Context, firmwarePath, hostname, mode string) (Result, error) {
	if len(d.Helper) == 0 {
		return Result{}, errors.New("no boot helper configured")
	}
	capture, err := os.CreateTemp(d.TempDir, "bspflash-boot-*.log")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create capture file: %w", err)
	}
	defer func() {
		capture.Close()
		if err := os.Remove(capture.Name()); err != nil {
			glog.Warningf("Failed to remove capture file %s: %v", capture.Name(), err)
		}
	}()

	name, args := d.command(firmwarePath, hostname, mode)
	glog.V(1).Infof("Running %s %q", name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	console := d.Console
	if console == nil {
		console = io.Discard
	}
	out := io.MultiWriter(console, capture)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Stdin = d.Stdin

	runErr := cmd.Run()

	if _, err := capture.Seek(0, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("failed to rewind capture file: %w", err)
	}
	b, err := io.ReadAll(capture)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read capture file: %w", err)
	}
	res := Result{Output: string(b)}

	if runErr != nil {
		res.ExitCode = -1
		var ee *exec.ExitError
		if errors.As(runErr, &ee) {
			res.ExitCode = ee.ExitCode()
		}
		return res, api.BootError{ExitCode: res.ExitCode, Wrapped: runErr}
	}
	return res, nil
}
