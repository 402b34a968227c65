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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/boardfarm/bspflash/api"
	"github.com/golang/glog"
)

const gptPattern = "gpt_main_*_emmc.img"

// LocateContent returns the directory holding the GPT image for hostname:
// bspDir itself, or else the first of its immediate subdirectories in
// lexical order. Deeper directories are not searched.
func LocateContent(bspDir, hostname string) (string, error) {
	gpt := GPT.FileName(hostname)
	if isFile(filepath.Join(bspDir, gpt)) {
		return bspDir, nil
	}
	dirs, err := contentDirs(bspDir, gpt)
	if err != nil {
		return "", err
	}
	switch len(dirs) {
	case 0:
		return "", api.NotFoundError{
			What:       fmt.Sprintf("%s in %s or its subdirectories", gpt, bspDir),
			Candidates: gptImages(bspDir),
		}
	case 1:
	default:
		glog.Warningf("%d directories in %s hold %s, using %s: %q", len(dirs), bspDir, gpt, dirs[0], dirs)
	}
	return dirs[0], nil
}

// contentDirs returns the immediate subdirectories of bspDir holding gpt,
// in lexical order.
func contentDirs(bspDir, gpt string) ([]string, error) {
	entries, err := os.ReadDir(bspDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", bspDir, err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d := filepath.Join(bspDir, e.Name())
		if isFile(filepath.Join(d, gpt)) {
			dirs = append(dirs, d)
		}
	}
	return dirs, nil
}

// gptImages returns the GPT images anywhere under root, relative to it.
func gptImages(root string) []string {
	var found []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(gptPattern, d.Name()); ok {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				rel = p
			}
			found = append(found, rel)
		}
		return nil
	})
	if err != nil {
		glog.Warningf("Failed to scan %s for partition tables: %v", root, err)
	}
	return found
}

// VerifyFiles checks that dir holds every required image for hostname.
// All absent images are reported at once.
func VerifyFiles(dir, hostname string) error {
	var missing []string
	for _, n := range RequiredFiles(hostname) {
		if !isFile(filepath.Join(dir, n)) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return api.MissingFilesError{Dir: dir, Missing: missing}
	}
	return nil
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
