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

package bsp

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boardfarm/bspflash/api"
	"github.com/boardfarm/bspflash/internal/testonly"
	"github.com/google/go-cmp/cmp"
)

const pkgName = "j6_bsp_20240301120000-daily.zip"

func newFetcher(t *testing.T, repo *testonly.Repo) *Fetcher {
	t.Helper()
	fw := filepath.Join(t.TempDir(), "j6e", "uart_boot")
	if err := os.MkdirAll(fw, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	return &Fetcher{
		Client:          newClient(t, repo.ListingURL()),
		DownloadURL:     mustParse(t, repo.DownloadURL()),
		FirmwarePath:    fw,
		DownloadTimeout: 10 * time.Second,
		MinFreeBytes:    1 << 30,
		freeSpace:       func(string) (int64, error) { return 1 << 40, nil },
	}
}

func assertNoArchive(t *testing.T, f *Fetcher) {
	t.Helper()
	if _, err := os.Stat(f.ArchivePath(pkgName)); !os.IsNotExist(err) {
		t.Errorf("archive %s still present (stat err: %v)", f.ArchivePath(pkgName), err)
	}
}

func TestDownloadAndExtract(t *testing.T) {
	for _, test := range []struct {
		desc  string
		zip   func(*testing.T, map[string]string) []byte
		setup func(*testonly.Repo)
		free  int64
	}{
		{desc: "verified", zip: testonly.Zip},
		{desc: "no directory entries", zip: testonly.FlatZip},
		{desc: "no metadata", zip: testonly.Zip, setup: func(r *testonly.Repo) { r.HideInfo(pkgName) }},
		{desc: "low space is only a warning", zip: testonly.Zip, free: 1024},
	} {
		t.Run(test.desc, func(t *testing.T) {
			repo := testonly.NewRepo(t)
			repo.Add(pkgName, test.zip(t, testonly.Package("j6e-evb", "j6_bsp/images/")))
			if test.setup != nil {
				test.setup(repo)
			}
			f := newFetcher(t, repo)
			if test.free > 0 {
				f.freeSpace = func(string) (int64, error) { return test.free, nil }
			}
			var progress bytes.Buffer
			f.Progress = &progress

			dest, err := f.DownloadAndExtract(context.Background(), pkgName)
			if err != nil {
				t.Fatalf("DownloadAndExtract() = %v", err)
			}
			if want := filepath.Join(filepath.Dir(f.FirmwarePath), "BSP"); dest != want {
				t.Errorf("dest = %q, want %q", dest, want)
			}
			for _, n := range testonly.ImageNames("j6e-evb") {
				b, err := os.ReadFile(filepath.Join(dest, "j6_bsp", "images", n))
				if err != nil {
					t.Errorf("extracted %s: %v", n, err)
					continue
				}
				if got, want := string(b), "image:"+n; got != want {
					t.Errorf("%s holds %q, want %q", n, got, want)
				}
			}
			assertNoArchive(t, f)
			if !strings.Contains(progress.String(), "downloading") {
				t.Errorf("progress = %q, want download progress", progress.String())
			}
			if got := repo.Downloads(pkgName); got != 1 {
				t.Errorf("package downloaded %d times, want 1", got)
			}
		})
	}
}

func TestDownloadAndExtractErrors(t *testing.T) {
	for _, test := range []struct {
		desc    string
		content []byte
		setup   func(*testonly.Repo)
		check   func(error) bool
	}{
		{
			desc:  "not published",
			check: func(err error) bool { var e api.DownloadError; return errors.As(err, &e) },
		}, {
			desc: "checksum mismatch",
			content: testonly.Zip(t, map[string]string{
				"a.img": "a",
			}),
			setup: func(r *testonly.Repo) { r.CorruptChecksum(pkgName) },
			check: func(err error) bool { var e api.DownloadError; return errors.As(err, &e) },
		}, {
			desc: "entry outside the extraction directory",
			content: testonly.FlatZip(t, map[string]string{
				"j6_bsp/images/boot.img": "boot",
				"../../escape.img":       "escape",
			}),
			check: func(err error) bool { var e api.ExtractError; return errors.As(err, &e) },
		}, {
			desc:    "not a zip",
			content: []byte("this is not a zip archive"),
			check:   func(err error) bool { var e api.ExtractError; return errors.As(err, &e) },
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			repo := testonly.NewRepo(t)
			if test.content != nil {
				repo.Add(pkgName, test.content)
			}
			if test.setup != nil {
				test.setup(repo)
			}
			f := newFetcher(t, repo)

			_, err := f.DownloadAndExtract(context.Background(), pkgName)
			if err == nil {
				t.Fatal("DownloadAndExtract() succeeded, want error")
			}
			if !test.check(err) {
				t.Errorf("DownloadAndExtract() = %T %v, unexpected error kind", err, err)
			}
			assertNoArchive(t, f)
		})
	}
}

func TestDownloadAndExtractReplacesLeftovers(t *testing.T) {
	repo := testonly.NewRepo(t)
	repo.Add(pkgName, testonly.FlatZip(t, testonly.Package("j6e-evb", "j6_bsp/images/")))
	f := newFetcher(t, repo)

	stale := filepath.Join(f.Dest(), "a_old_bsp", "gpt_main_j6e-evb_emmc.img")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dest, err := f.DownloadAndExtract(context.Background(), pkgName)
	if err != nil {
		t.Fatalf("DownloadAndExtract() = %v", err)
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	if want := []string{"j6_bsp"}; !cmp.Equal(got, want) {
		t.Errorf("%s holds %v, want %v", dest, got, want)
	}
}

func TestDownloadCancelled(t *testing.T) {
	repo := testonly.NewRepo(t)
	repo.Add(pkgName, testonly.Zip(t, map[string]string{"a.img": "a"}))
	f := newFetcher(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.DownloadAndExtract(ctx, pkgName)
	var de api.DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("DownloadAndExtract() = %v, want api.DownloadError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DownloadAndExtract() = %v, want it to wrap context.Canceled", err)
	}
	assertNoArchive(t, f)
}

func TestFreeSpace(t *testing.T) {
	dir := t.TempDir()
	n, err := FreeSpace(filepath.Join(dir, "not", "yet", "created"))
	if err != nil {
		t.Fatalf("FreeSpace() = %v", err)
	}
	if n <= 0 {
		t.Errorf("FreeSpace() = %d, want a positive amount", n)
	}
}

func TestHumanBytes(t *testing.T) {
	for _, test := range []struct {
		n    int64
		want string
	}{
		{n: 0, want: "0 B"},
		{n: 1023, want: "1023 B"},
		{n: 2048, want: "2.0 KiB"},
		{n: 3 << 30, want: "3.0 GiB"},
		{n: -1, want: "-1B"},
	} {
		if got := humanBytes(test.n); got != test.want {
			t.Errorf("humanBytes(%d) = %q, want %q", test.n, got, test.want)
		}
	}
}
