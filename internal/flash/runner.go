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

package flash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/boardfarm/bspflash/internal/retry"
	"github.com/golang/glog"
)

// Runner invokes the flashing client with the given arguments and reports
// whether it succeeded.
type Runner interface {
	Run(ctx context.Context, args []string) error
}

// ExecRunner runs the flashing client as a subprocess.
type ExecRunner struct {
	// Command is the client command line, e.g. ["sudo", "fastboot"].
	Command []string
	// Output receives the client's combined output as it runs. May be nil.
	Output io.Writer
}

// Run executes the client once. The process is killed when ctx is done.
func (r ExecRunner) Run(ctx context.Context, args []string) error {
	if len(r.Command) == 0 {
		return retry.Permanent(errors.New("no flashing client configured"))
	}
	argv := append(append([]string{}, r.Command[1:]...), args...)
	cmd := exec.CommandContext(ctx, r.Command[0], argv...)
	var out bytes.Buffer
	w := io.Writer(&out)
	if r.Output != nil {
		w = io.MultiWriter(r.Output, &out)
	}
	cmd.Stdout, cmd.Stderr = w, w

	line := strings.Join(append([]string{r.Command[0]}, argv...), " ")
	glog.V(1).Infof("Running %s", line)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", line, ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return retry.Permanent(fmt.Errorf("%s: %w", line, err))
		}
		glog.V(1).Infof("%s output:\n%s", line, out.String())
		return fmt.Errorf("%s: %w: %s", line, err, lastLine(out.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
