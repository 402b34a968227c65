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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boardfarm/bspflash/api"
	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoad(t *testing.T) {
	for _, test := range []struct {
		desc    string
		yaml    string
		mod     func(*Config)
		wantErr bool
	}{
		{
			desc: "empty file keeps defaults",
			yaml: "",
			mod:  func(*Config) {},
		}, {
			desc: "overrides",
			yaml: `
ListingURL: http://localhost:8081/api/storage/bsp
DownloadURL: http://localhost:8081/bsp
Fastboot: ["sudo", "fastboot"]
RetryDelay: 500ms
DownloadTimeout: 20m
`,
			mod: func(c *Config) {
				c.ListingURL = "http://localhost:8081/api/storage/bsp"
				c.DownloadURL = "http://localhost:8081/bsp"
				c.Fastboot = []string{"sudo", "fastboot"}
				c.RetryDelay = 500 * time.Millisecond
				c.DownloadTimeout = 20 * time.Minute
			},
		}, {
			desc:    "unknown field",
			yaml:    "Colour: blue\n",
			wantErr: true,
		}, {
			desc:    "invalid retry attempts",
			yaml:    "RetryAttempts: 0\n",
			wantErr: true,
		}, {
			desc:    "sparse limit without chunk",
			yaml:    "SparseLimitBytes: 1024\nSparseChunk: \"\"\n",
			wantErr: true,
		}, {
			desc:    "garbage",
			yaml:    "{{{",
			wantErr: true,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			f := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(f, []byte(test.yaml), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			got, err := Load(f)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Load() err = %v, wantErr %t", err, test.wantErr)
			}
			if test.wantErr {
				var ce api.ConfigError
				if !errors.As(err, &ce) {
					t.Errorf("Load() err = %T, want api.ConfigError", err)
				}
				return
			}
			want := Default()
			test.mod(&want)
			if d := cmp.Diff(want, got); d != "" {
				t.Errorf("Load() diff (-want +got):\n%s", d)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var ce api.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("Load() err = %v, want api.ConfigError", err)
	}
}

func TestLoadNoPath(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") = %v", err)
	}
	if d := cmp.Diff(Default(), got); d != "" {
		t.Errorf("Load(\"\") diff (-want +got):\n%s", d)
	}
}
