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

// Package testonly contains fakes of the external services used in tests.
package testonly

import (
	"archive/zip"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/boardfarm/bspflash/api"
	"github.com/gorilla/mux"
)

const (
	// ListingPath is where the fake serves its storage API folder.
	ListingPath = "/artifactory/api/storage/bsp/daily"
	// DownloadPath is where the fake serves package content.
	DownloadPath = "/artifactory/bsp/daily"
)

// Repo is a fake artifact repository serving a single folder of packages.
type Repo struct {
	*httptest.Server

	mu       sync.Mutex
	packages map[string][]byte
	folders  []string
	badMD5   map[string]bool
	noInfo   map[string]bool
	// downloads counts download requests per package.
	downloads map[string]int
}

// NewRepo starts a fake repository; it is closed when the test ends.
func NewRepo(t *testing.T) *Repo {
	t.Helper()
	r := &Repo{
		packages:  make(map[string][]byte),
		badMD5:    make(map[string]bool),
		noInfo:    make(map[string]bool),
		downloads: make(map[string]int),
	}
	m := mux.NewRouter()
	m.HandleFunc(ListingPath, r.listing).Methods(http.MethodGet)
	m.HandleFunc(ListingPath+"/{name}", r.info).Methods(http.MethodGet)
	m.HandleFunc(DownloadPath+"/{name}", r.download).Methods(http.MethodGet)
	r.Server = httptest.NewServer(m)
	t.Cleanup(r.Server.Close)
	return r
}

// ListingURL is the URL of the fake's folder listing.
func (r *Repo) ListingURL() string {
	return r.URL + ListingPath
}

// DownloadURL is the base URL that package names are appended to.
func (r *Repo) DownloadURL() string {
	return r.URL + DownloadPath
}

// Add publishes a package.
func (r *Repo) Add(name string, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[name] = content
}

// AddFolder publishes a sub-folder entry in the listing.
func (r *Repo) AddFolder(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folders = append(r.folders, name)
}

// CorruptChecksum makes the fake advertise a wrong MD5 for name.
func (r *Repo) CorruptChecksum(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.badMD5[name] = true
}

// HideInfo makes file info requests for name fail.
func (r *Repo) HideInfo(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noInfo[name] = true
}

// Downloads returns how many times name was downloaded.
func (r *Repo) Downloads(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downloads[name]
}

func (r *Repo) listing(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := api.StorageListing{Repo: "bsp", Path: "/daily", Children: []api.StorageChild{}}
	for _, f := range r.folders {
		l.Children = append(l.Children, api.StorageChild{URI: "/" + f, Folder: true})
	}
	names := make([]string, 0, len(r.packages))
	for n := range r.packages {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		l.Children = append(l.Children, api.StorageChild{URI: "/" + n})
	}
	writeJSON(w, l)
}

func (r *Repo) info(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.packages[name]
	if !ok || r.noInfo[name] {
		http.NotFound(w, req)
		return
	}
	sum := md5.Sum(content)
	digest := hex.EncodeToString(sum[:])
	if r.badMD5[name] {
		digest = "00000000000000000000000000000000"
	}
	writeJSON(w, api.FileInfo{
		DownloadURI: r.URL + DownloadPath + "/" + name,
		Size:        strconv.Itoa(len(content)),
		Checksums:   api.Checksums{MD5: digest},
	})
}

func (r *Repo) download(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	r.mu.Lock()
	content, ok := r.packages[name]
	r.downloads[name]++
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Write(content)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Zip returns a zip archive holding files, keyed by slash-separated path.
// Parent directories get their own entries.
func Zip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	entries := make(map[string]bool)
	for n := range files {
		entries[n] = true
		for d := path.Dir(n); d != "." && d != "/"; d = path.Dir(d) {
			entries[d+"/"] = true
		}
	}
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var b bytes.Buffer
	z := zip.NewWriter(&b)
	for _, n := range names {
		h := &zip.FileHeader{Name: n, Method: zip.Deflate}
		if strings.HasSuffix(n, "/") {
			h.Method = zip.Store
			h.SetMode(fs.ModeDir | 0o755)
		} else {
			h.SetMode(0o644)
		}
		f, err := z.CreateHeader(h)
		if err != nil {
			t.Fatalf("zip.CreateHeader(%q): %v", n, err)
		}
		if h.Mode().IsDir() {
			continue
		}
		if _, err := f.Write([]byte(files[n])); err != nil {
			t.Fatalf("zip write %q: %v", n, err)
		}
	}
	if err := z.Close(); err != nil {
		t.Fatalf("zip.Close: %v", err)
	}
	return b.Bytes()
}

// FlatZip returns a zip archive holding only file entries, as written by
// tools that never record directories.
func FlatZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	var b bytes.Buffer
	z := zip.NewWriter(&b)
	for _, n := range names {
		f, err := z.Create(n)
		if err != nil {
			t.Fatalf("zip.Create(%q): %v", n, err)
		}
		if _, err := f.Write([]byte(files[n])); err != nil {
			t.Fatalf("zip write %q: %v", n, err)
		}
	}
	if err := z.Close(); err != nil {
		t.Fatalf("zip.Close: %v", err)
	}
	return b.Bytes()
}

// ImageNames returns the image files a complete package for hostname holds.
func ImageNames(hostname string) []string {
	return []string{
		fmt.Sprintf("gpt_main_%s_emmc.img", hostname),
		"acore_cfg_hsm_signed.img",
		"bl31.img",
		"optee.img",
		"uboot.img",
		"vbmeta.img",
		"boot.img",
		"system.img",
		"basesystem.img",
		"spl_ddr_hsm_signed.img",
	}
}

// Package returns the files of a complete package for hostname, placed
// under prefix.
func Package(hostname, prefix string) map[string]string {
	files := make(map[string]string)
	for _, n := range ImageNames(hostname) {
		files[prefix+n] = "image:" + n
	}
	return files
}
