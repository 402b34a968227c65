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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/boardfarm/bspflash/api"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/schollz/progressbar/v3"
)

// DirName is the name of the extraction directory, next to the firmware.
const DirName = "BSP"

// Fetcher downloads a package next to the firmware directory and unpacks it.
type Fetcher struct {
	Client *Client
	// DownloadURL is the base URL that package names are appended to.
	DownloadURL *url.URL
	// FirmwarePath is the boot-stage firmware directory; the archive and
	// the extraction directory are created beside it.
	FirmwarePath    string
	DownloadTimeout time.Duration
	// MinFreeBytes is the free space below which a warning is logged.
	MinFreeBytes int64
	// Progress receives human readable download progress. May be nil.
	Progress io.Writer

	// freeSpace is replaced in tests.
	freeSpace func(path string) (int64, error)
}

// Dest returns the extraction directory.
func (f *Fetcher) Dest() string {
	return filepath.Join(filepath.Dir(f.FirmwarePath), DirName)
}

// ArchivePath returns where the named package is downloaded to.
func (f *Fetcher) ArchivePath(name string) string {
	return filepath.Join(filepath.Dir(f.FirmwarePath), name)
}

// DownloadAndExtract fetches the named package and unpacks it into Dest,
// which is returned. Whatever an earlier run left in Dest is removed before
// unpacking. The archive file is always removed before returning: after a
// failed download, and after extraction whether or not it worked.
func (f *Fetcher) DownloadAndExtract(ctx context.Context, name string) (string, error) {
	dest := f.Dest()
	f.checkFreeSpace(dest)

	info, err := f.Client.Info(ctx, name)
	if err != nil {
		glog.Warningf("No repository metadata for %s, skipping integrity checks: %v", name, err)
	}

	archive := f.ArchivePath(name)
	if err := os.MkdirAll(filepath.Dir(archive), 0o755); err != nil {
		return "", api.DownloadError{URL: name, Wrapped: err}
	}
	src := f.DownloadURL.JoinPath(name)
	if err := f.download(ctx, src, archive, info); err != nil {
		if rmErr := os.Remove(archive); rmErr != nil && !os.IsNotExist(rmErr) {
			glog.Warningf("Failed to remove partial download %s: %v", archive, rmErr)
		}
		return "", api.DownloadError{URL: src.String(), Wrapped: err}
	}

	extractErr := f.extract(archive, dest)
	if err := os.Remove(archive); err != nil {
		glog.Warningf("Failed to remove archive %s: %v", archive, err)
	}
	if extractErr != nil {
		return "", api.ExtractError{Archive: archive, Wrapped: extractErr}
	}
	return dest, nil
}

// extract replaces the content of dest with the archive's.
func (f *Fetcher) extract(archive, dest string) error {
	if entries, err := os.ReadDir(dest); err == nil && len(entries) > 0 {
		glog.Warningf("Removing %d leftover entries from a previous package in %s", len(entries), dest)
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dest, err)
	}
	glog.Infof("Extracting %s to %s", archive, dest)
	return Unzip(archive, dest)
}

func (f *Fetcher) checkFreeSpace(dest string) {
	free := f.freeSpace
	if free == nil {
		free = FreeSpace
	}
	n, err := free(dest)
	if err != nil {
		glog.Warningf("Unable to determine free space at %s: %v", dest, err)
		return
	}
	if n < f.MinFreeBytes {
		glog.Warningf("Only %s free at %s, the package may need %s or more", humanBytes(n), dest, humanBytes(f.MinFreeBytes))
	}
}

func (f *Fetcher) download(ctx context.Context, src *url.URL, dst string, info *api.FileInfo) error {
	if f.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.DownloadTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %v: %v", src, resp.Status)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	total := resp.ContentLength
	wantSize := int64(-1)
	if info != nil && info.Size != "" {
		if wantSize, err = strconv.ParseInt(info.Size, 10, 64); err != nil {
			glog.Warningf("Ignoring unparseable size %q: %v", info.Size, err)
			wantSize = -1
		} else {
			total = wantSize
		}
	}

	glog.Infof("Downloading %s to %s", src, dst)
	start := time.Now()
	sum := md5.New()
	w := io.MultiWriter(out, sum)
	if f.Progress != nil {
		bar := progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(f.Progress),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(f.Progress) }),
		)
		defer bar.Finish()
		w = io.MultiWriter(out, sum, bar)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("transfer interrupted after %s: %w", humanBytes(n), err)
	}
	if err := out.Sync(); err != nil {
		return err
	}
	glog.Infof("Downloaded %s in %v", humanBytes(n), time.Since(start).Round(time.Second))
	return verify(n, sum, wantSize, info)
}

func verify(n int64, sum hash.Hash, wantSize int64, info *api.FileInfo) error {
	if wantSize >= 0 && n != wantSize {
		return fmt.Errorf("invalid package size, actual: %dB, expect: %dB", n, wantSize)
	}
	if info == nil || info.Checksums.MD5 == "" {
		return nil
	}
	got := hex.EncodeToString(sum.Sum(nil))
	if !strings.EqualFold(got, info.Checksums.MD5) {
		return fmt.Errorf("invalid package md5, actual: %s, expect: %s", got, info.Checksums.MD5)
	}
	glog.V(1).Infof("Package md5 %s verified", got)
	return nil
}

func humanBytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%dB", n)
	}
	return humanize.IBytes(uint64(n))
}
