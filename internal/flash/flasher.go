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

// Package flash writes the images of an extracted BSP package to a board
// that is waiting in fastboot mode on the network.
//
//go:generate mockgen -write_package_comment=false -package flash -destination mock_runner_test.go github.com/boardfarm/bspflash/internal/flash Runner
package flash

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boardfarm/bspflash/api"
	"github.com/boardfarm/bspflash/internal/retry"
	"github.com/golang/glog"
)

// State is a stage of a Flash call.
type State int

const (
	LocatingContent State = iota
	VerifyingFiles
	Flashing
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case LocatingContent:
		return "LocatingContent"
	case VerifyingFiles:
		return "VerifyingFiles"
	case Flashing:
		return "Flashing"
	case Success:
		return "Success"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// rebootTimeout bounds the optional reboot issued after the plan.
const rebootTimeout = 30 * time.Second

// Flasher provisions one board from an extracted package.
type Flasher struct {
	Runner Runner
	// Retry is applied to every flashing client invocation.
	Retry retry.Policy
	// Addr and Port locate the board's UDP fastboot server.
	Addr string
	Port int
	Plan PlanOptions
	// Reboot asks the board to restart once every image is written.
	Reboot bool
}

// Target is the flashing client's device selector.
func (f *Flasher) Target() string {
	return fmt.Sprintf("udp:%s:%d", f.Addr, f.Port)
}

// Flash locates the content directory in bspDir, checks it holds every image
// for hostname, then runs the flashing plan. bspDir is removed only when the
// final state is Success; on failure it is left untouched for inspection.
func (f *Flasher) Flash(ctx context.Context, bspDir, hostname string) (State, error) {
	state := LocatingContent
	enter := func(s State) {
		glog.V(1).Infof("flash: %v -> %v", state, s)
		state = s
	}
	fail := func(err error) (State, error) {
		enter(Failed)
		glog.Warningf("Flashing failed, keeping %s for inspection", bspDir)
		return state, err
	}

	dir, err := LocateContent(bspDir, hostname)
	if err != nil {
		return fail(err)
	}
	glog.Infof("Content directory: %s", dir)

	enter(VerifyingFiles)
	if err := VerifyFiles(dir, hostname); err != nil {
		return fail(err)
	}
	plan, err := BuildPlan(dir, hostname, f.Plan)
	if err != nil {
		return fail(fmt.Errorf("failed to build flashing plan: %w", err))
	}

	enter(Flashing)
	for i, op := range plan.Ops {
		if err := f.run(ctx, i+1, len(plan.Ops), op); err != nil {
			return fail(err)
		}
	}
	if f.Reboot {
		reboot := Operation{Verb: "reboot", Timeout: rebootTimeout}
		if err := f.run(ctx, len(plan.Ops)+1, len(plan.Ops)+1, reboot); err != nil {
			glog.Warningf("Images written but the board did not reboot: %v", err)
		}
	}

	enter(Success)
	removeTree(bspDir)
	return state, nil
}

// run executes op under the retry policy, each attempt bounded by the
// operation's timeout.
func (f *Flasher) run(ctx context.Context, step, total int, op Operation) error {
	args := append([]string{"-s", f.Target()}, op.Args()...)
	label := fmt.Sprintf("[%d/%d] %s", step, total, op)
	glog.Infof("%s", label)
	start := time.Now()
	attempts, err := f.Retry.Do(ctx, label, func(ctx context.Context) error {
		if op.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, op.Timeout)
			defer cancel()
		}
		return f.Runner.Run(ctx, args)
	})
	if err != nil {
		return api.FlashOperationError{Step: step, Op: op.String(), Attempts: attempts, Wrapped: err}
	}
	glog.V(1).Infof("%s done in %v after %d attempt(s)", label, time.Since(start).Round(time.Millisecond), attempts)
	return nil
}

// removeTree deletes dir, first moving the working directory out of it if
// needed. Failures are logged only.
func removeTree(dir string) {
	if size, err := treeSize(dir); err != nil {
		glog.Warningf("Failed to measure %s: %v", dir, err)
	} else {
		glog.Infof("Removing %s (%d bytes)", dir, size)
	}
	if within(dir) {
		parent := filepath.Dir(dir)
		if err := os.Chdir(parent); err != nil {
			glog.Warningf("Failed to leave %s: %v", dir, err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		glog.Warningf("Failed to remove %s: %v", dir, err)
	}
}

func treeSize(dir string) (int64, error) {
	var n int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			n += fi.Size()
		}
		return nil
	})
	return n, err
}

// within reports whether the working directory is dir or below it.
func within(dir string) bool {
	wd, err := os.Getwd()
	if err != nil {
		return false
	}
	dir = canonical(dir)
	wd = canonical(wd)
	rel, err := filepath.Rel(dir, wd)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func canonical(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		p = a
	}
	if r, err := filepath.EvalSymlinks(p); err == nil {
		p = r
	}
	return p
}
