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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/boardfarm/bspflash/api"
	"github.com/boardfarm/bspflash/internal/testonly"
	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", s, err)
	}
	return u
}

func newClient(t *testing.T, listing string) *Client {
	t.Helper()
	return &Client{
		ListingURL:   mustParse(t, listing),
		Suffix:       "-daily.zip",
		Marker:       "bsp",
		ProbeTimeout: 5 * time.Second,
		ListTimeout:  5 * time.Second,
	}
}

func files(names ...string) []api.StorageChild {
	r := make([]api.StorageChild, 0, len(names))
	for _, n := range names {
		r = append(r, api.StorageChild{URI: "/" + n})
	}
	return r
}

func TestSelectLatest(t *testing.T) {
	for _, test := range []struct {
		desc     string
		children []api.StorageChild
		marker   string
		want     string
		wantOK   bool
	}{
		{
			desc:     "newest timestamp",
			children: files("A-20240101000000-daily.zip", "A-20240102000000-daily.zip"),
			marker:   "A",
			want:     "A-20240102000000-daily.zip",
			wantOK:   true,
		}, {
			desc:     "order of listing irrelevant",
			children: files("j6_bsp_20240305101010-daily.zip", "j6_bsp_20231231235959-daily.zip"),
			marker:   "bsp",
			want:     "j6_bsp_20240305101010-daily.zip",
			wantOK:   true,
		}, {
			desc:     "marker required",
			children: files("j6_bsp_20240101000000-daily.zip", "j6_sdk_20250101000000-daily.zip"),
			marker:   "bsp",
			want:     "j6_bsp_20240101000000-daily.zip",
			wantOK:   true,
		}, {
			desc:     "suffix required",
			children: files("j6_bsp_20240101000000-daily.zip", "j6_bsp_20250101000000-daily.zip.md5", "j6_bsp_20260101000000.zip"),
			marker:   "bsp",
			want:     "j6_bsp_20240101000000-daily.zip",
			wantOK:   true,
		}, {
			desc:     "timestamp must precede suffix",
			children: files("j6_bsp_20240101000000-daily.zip", "j6_bsp_2025-daily.zip", "j6_bsp_latest-daily.zip"),
			marker:   "bsp",
			want:     "j6_bsp_20240101000000-daily.zip",
			wantOK:   true,
		}, {
			desc:     "tie broken by name",
			children: files("b_bsp_20240101000000-daily.zip", "a_bsp_20240101000000-daily.zip"),
			marker:   "bsp",
			want:     "b_bsp_20240101000000-daily.zip",
			wantOK:   true,
		}, {
			desc: "folders skipped",
			children: append(files("j6_bsp_20240101000000-daily.zip"),
				api.StorageChild{URI: "/j6_bsp_20990101000000-daily.zip", Folder: true}),
			marker: "bsp",
			want:   "j6_bsp_20240101000000-daily.zip",
			wantOK: true,
		}, {
			desc:     "nothing matches",
			children: files("readme.txt", "j6_sdk_20240101000000-daily.zip"),
			marker:   "bsp",
		}, {
			desc:   "empty",
			marker: "bsp",
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, ok := SelectLatest(test.children, "-daily.zip", test.marker)
			if got != test.want || ok != test.wantOK {
				t.Errorf("SelectLatest() = %q, %v, want %q, %v", got, ok, test.want, test.wantOK)
			}
		})
	}
}

func TestLatestName(t *testing.T) {
	repo := testonly.NewRepo(t)
	repo.AddFolder("archive")
	repo.Add("j6_bsp_20240101000000-daily.zip", []byte("old"))
	repo.Add("j6_bsp_20240301120000-daily.zip", []byte("new"))
	repo.Add("j6_sdk_20250101000000-daily.zip", []byte("other"))

	c := newClient(t, repo.ListingURL())
	got, err := c.LatestName(context.Background())
	if err != nil {
		t.Fatalf("LatestName() = %v", err)
	}
	if want := "j6_bsp_20240301120000-daily.zip"; got != want {
		t.Errorf("LatestName() = %q, want %q", got, want)
	}
}

func TestLatestNameNotFound(t *testing.T) {
	repo := testonly.NewRepo(t)
	repo.Add("j6_sdk_20250101000000-daily.zip", []byte("other"))

	c := newClient(t, repo.ListingURL())
	_, err := c.LatestName(context.Background())
	var nf api.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("LatestName() = %v, want api.NotFoundError", err)
	}
}

func TestLatestNameUnreachable(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	addr := s.URL
	s.Close()

	c := newClient(t, addr+testonly.ListingPath)
	_, err := c.LatestName(context.Background())
	var ne api.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("LatestName() = %v, want api.NetworkError", err)
	}
}

func TestListErrors(t *testing.T) {
	for _, test := range []struct {
		desc    string
		handler http.HandlerFunc
	}{
		{
			desc: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		}, {
			desc: "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("<html>maintenance</html>"))
			},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			s := httptest.NewServer(test.handler)
			defer s.Close()
			c := newClient(t, s.URL)
			_, err := c.List(context.Background())
			var ne api.NetworkError
			if !errors.As(err, &ne) {
				t.Fatalf("List() = %v, want api.NetworkError", err)
			}
			if ne.URL != s.URL {
				t.Errorf("NetworkError.URL = %q, want %q", ne.URL, s.URL)
			}
		})
	}
}

func TestProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer s.Close()
	defer close(release)

	c := newClient(t, s.URL)
	c.ProbeTimeout = 50 * time.Millisecond
	start := time.Now()
	err := c.Probe(context.Background())
	var ne api.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("Probe() = %v, want api.NetworkError", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("Probe took %v, want it bounded by the probe timeout", d)
	}
}

func TestInfo(t *testing.T) {
	repo := testonly.NewRepo(t)
	repo.Add("j6_bsp_20240101000000-daily.zip", []byte("content"))

	c := newClient(t, repo.ListingURL())
	got, err := c.Info(context.Background(), "j6_bsp_20240101000000-daily.zip")
	if err != nil {
		t.Fatalf("Info() = %v", err)
	}
	want := &api.FileInfo{
		DownloadURI: repo.DownloadURL() + "/j6_bsp_20240101000000-daily.zip",
		Size:        "7",
		Checksums:   api.Checksums{MD5: "9a0364b9e99bb480dd25e1f0284c8555"},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Info() diff (-want +got):\n%s", d)
	}

	if _, err := c.Info(context.Background(), "absent.zip"); err == nil {
		t.Error("Info(absent.zip) succeeded, want error")
	}
}
