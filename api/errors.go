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

package api

import (
	"fmt"
	"strings"
)

// ConfigError is returned when the board identity cannot be resolved, or the
// tool configuration is unusable.
type ConfigError struct {
	Path    string
	Wrapped error
}

func (e ConfigError) Unwrap() error {
	return e.Wrapped
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("configuration %q: %v", e.Path, e.Wrapped)
}

// InputError reports invalid operator input or an invalid flag combination.
type InputError struct {
	Input  string
	Reason string
}

func (e InputError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

// BootError is returned when the serial-boot helper exits unsuccessfully.
type BootError struct {
	ExitCode int
	Wrapped  error
}

func (e BootError) Unwrap() error {
	return e.Wrapped
}

func (e BootError) Error() string {
	return fmt.Sprintf("boot helper failed with exit code %d: %v", e.ExitCode, e.Wrapped)
}

// NetworkError is returned when the artifact repository cannot be reached.
type NetworkError struct {
	URL     string
	Wrapped error
}

func (e NetworkError) Unwrap() error {
	return e.Wrapped
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("repository %s unreachable: %v", e.URL, e.Wrapped)
}

// NotFoundError is returned when no package matches in the repository
// listing, or no content directory matches in an extracted package.
type NotFoundError struct {
	What string
	// Candidates lists near-misses that may help the operator, e.g. the GPT
	// images that were found for other hostnames.
	Candidates []string
}

func (e NotFoundError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("not found: %s", e.What)
	}
	return fmt.Sprintf("not found: %s (found instead: %s)", e.What, strings.Join(e.Candidates, ", "))
}

// MissingFilesError lists every required image absent from a content directory.
type MissingFilesError struct {
	Dir     string
	Missing []string
}

func (e MissingFilesError) Error() string {
	return fmt.Sprintf("%d required image(s) missing from %s: %s", len(e.Missing), e.Dir, strings.Join(e.Missing, ", "))
}

// DownloadError is returned when fetching or verifying a package archive fails.
type DownloadError struct {
	URL     string
	Wrapped error
}

func (e DownloadError) Unwrap() error {
	return e.Wrapped
}

func (e DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.Wrapped)
}

// ExtractError is returned when a downloaded archive cannot be unpacked.
type ExtractError struct {
	Archive string
	Wrapped error
}

func (e ExtractError) Unwrap() error {
	return e.Wrapped
}

func (e ExtractError) Error() string {
	return fmt.Sprintf("extraction of %s failed: %v", e.Archive, e.Wrapped)
}

// FlashOperationError is returned when a flashing step fails on every attempt.
type FlashOperationError struct {
	Step     int
	Op       string
	Attempts int
	Wrapped  error
}

func (e FlashOperationError) Unwrap() error {
	return e.Wrapped
}

func (e FlashOperationError) Error() string {
	return fmt.Sprintf("step %d (%s) failed after %d attempt(s): %v", e.Step, e.Op, e.Attempts, e.Wrapped)
}
