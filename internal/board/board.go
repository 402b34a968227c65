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

// Package board knows which boards are supported and where their boot-stage
// firmware lives on the provisioning host.
package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/boardfarm/bspflash/api"
	"github.com/golang/glog"
)

// Board is a supported board type.
type Board int

const (
	// Default is used for hostnames that are not in the table.
	Default Board = iota
	J6EEvb
	J6MEvb
	J6PEvb
	J6EVw

	numBoards
)

// Hostname returns the identity hostname of the board, or "" for Default.
func (b Board) Hostname() string {
	switch b {
	case J6EEvb:
		return "j6e-evb"
	case J6MEvb:
		return "j6m-evb"
	case J6PEvb:
		return "j6p-evb"
	case J6EVw:
		return "j6e-vw"
	case Default:
		return ""
	}
	panic(fmt.Sprintf("unknown board %d", int(b)))
}

// FirmwarePath returns the directory holding the board's boot-stage firmware.
func (b Board) FirmwarePath() string {
	switch b {
	case J6EEvb:
		return "/opt/bspflash/firmware/j6e/uart_boot"
	case J6MEvb:
		return "/opt/bspflash/firmware/j6m/uart_boot"
	case J6PEvb:
		return "/opt/bspflash/firmware/j6p/uart_boot"
	case J6EVw:
		return "/opt/bspflash/firmware/j6e-vw/uart_boot"
	case Default:
		return "/opt/bspflash/firmware/default/uart_boot"
	}
	panic(fmt.Sprintf("unknown board %d", int(b)))
}

func (b Board) String() string {
	if b == Default {
		return "default"
	}
	return b.Hostname()
}

// All returns every board in the table, excluding Default.
func All() []Board {
	r := make([]Board, 0, numBoards-1)
	for b := Default + 1; b < numBoards; b++ {
		r = append(r, b)
	}
	return r
}

// Lookup finds the board with the given hostname.
func Lookup(hostname string) (Board, bool) {
	for _, b := range All() {
		if b.Hostname() == hostname {
			return b, true
		}
	}
	return Default, false
}

// FirmwarePath maps a hostname to its firmware directory, falling back to the
// default entry for unknown hostnames.
func FirmwarePath(hostname string) string {
	b, ok := Lookup(hostname)
	if !ok {
		glog.Warningf("No firmware package registered for host %q, using default %s", hostname, Default.FirmwarePath())
	}
	return b.FirmwarePath()
}

// Identity is the content of the board identity file.
type Identity struct {
	Hostname string `json:"hostname"`
}

// ResolveHostname returns override if it is set, and otherwise the hostname
// recorded in the identity file at identityPath.
func ResolveHostname(override, identityPath string) (string, error) {
	if override != "" {
		return override, nil
	}
	b, err := os.ReadFile(identityPath)
	if err != nil {
		return "", api.ConfigError{Path: identityPath, Wrapped: fmt.Errorf("failed to read identity: %w", err)}
	}
	var id Identity
	if err := json.Unmarshal(b, &id); err != nil {
		return "", api.ConfigError{Path: identityPath, Wrapped: fmt.Errorf("failed to parse identity: %w", err)}
	}
	if id.Hostname == "" {
		return "", api.ConfigError{Path: identityPath, Wrapped: errors.New("missing field: hostname")}
	}
	return id.Hostname, nil
}
