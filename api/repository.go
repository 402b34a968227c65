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

// Package api contains the wire types of the artifact repository and the
// errors shared by the provisioning stages.
package api

import "strings"

// StorageListing is the artifact repository's response for a folder.
type StorageListing struct {
	Repo     string         `json:"repo"`
	Path     string         `json:"path"`
	Children []StorageChild `json:"children"`
}

// StorageChild is one entry of a folder listing.
type StorageChild struct {
	// URI is the entry name relative to the folder, with a leading slash.
	URI    string `json:"uri"`
	Folder bool   `json:"folder"`
}

// Name returns the child's file name.
func (c StorageChild) Name() string {
	return strings.TrimPrefix(c.URI, "/")
}

// FileInfo is the artifact repository's metadata for a single file.
type FileInfo struct {
	DownloadURI string    `json:"downloadUri"`
	Size        string    `json:"size"`
	Checksums   Checksums `json:"checksums"`
}

// Checksums holds the hex digests the repository computed at upload time.
type Checksums struct {
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
}
