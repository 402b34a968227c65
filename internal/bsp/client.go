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

// Package bsp finds, downloads and unpacks board-support packages published
// to the artifact repository.
package bsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/boardfarm/bspflash/api"
	"github.com/golang/glog"
)

// Client is an HTTP client for the repository's storage API.
// Requests are never retried.
type Client struct {
	// ListingURL is the storage API URL of the folder holding the packages.
	ListingURL *url.URL
	// Suffix must end every candidate package name.
	Suffix string
	// Marker must appear in every candidate package name.
	Marker string

	ProbeTimeout time.Duration
	ListTimeout  time.Duration

	HTTP *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// get fetches u within timeout and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, u *url.URL, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %v: %v", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Probe checks that the listing endpoint answers within ProbeTimeout.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.get(ctx, c.ListingURL, c.ProbeTimeout); err != nil {
		return api.NetworkError{URL: c.ListingURL.String(), Wrapped: err}
	}
	return nil
}

// List returns the entries of the package folder.
func (c *Client) List(ctx context.Context) ([]api.StorageChild, error) {
	b, err := c.get(ctx, c.ListingURL, c.ListTimeout)
	if err != nil {
		return nil, api.NetworkError{URL: c.ListingURL.String(), Wrapped: err}
	}
	var l api.StorageListing
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, api.NetworkError{URL: c.ListingURL.String(), Wrapped: fmt.Errorf("failed to parse listing: %w", err)}
	}
	return l.Children, nil
}

// LatestName probes the repository, then returns the name of the newest
// package matching Suffix and Marker.
func (c *Client) LatestName(ctx context.Context) (string, error) {
	if err := c.Probe(ctx); err != nil {
		return "", err
	}
	children, err := c.List(ctx)
	if err != nil {
		return "", err
	}
	glog.V(1).Infof("Listing %s holds %d entries", c.ListingURL, len(children))
	name, ok := SelectLatest(children, c.Suffix, c.Marker)
	if !ok {
		return "", api.NotFoundError{What: fmt.Sprintf("package matching *%s*%s in %s", c.Marker, c.Suffix, c.ListingURL)}
	}
	return name, nil
}

// Info returns the repository's metadata for the named file.
func (c *Client) Info(ctx context.Context, name string) (*api.FileInfo, error) {
	b, err := c.get(ctx, c.ListingURL.JoinPath(name), c.ListTimeout)
	if err != nil {
		return nil, err
	}
	var fi api.FileInfo
	if err := json.Unmarshal(b, &fi); err != nil {
		return nil, fmt.Errorf("failed to parse file info: %w", err)
	}
	return &fi, nil
}

// SelectLatest picks the candidate with the greatest 14-digit timestamp
// (YYYYMMDDHHMMSS) immediately preceding suffix. Names must also contain
// marker. Timestamps have a fixed width so string comparison orders them
// chronologically.
func SelectLatest(children []api.StorageChild, suffix, marker string) (string, bool) {
	stamp := regexp.MustCompile(`(\d{14})` + regexp.QuoteMeta(suffix) + `$`)
	var best, bestStamp string
	for _, c := range children {
		if c.Folder {
			continue
		}
		name := c.Name()
		if !strings.HasSuffix(name, suffix) || !strings.Contains(name, marker) {
			continue
		}
		m := stamp.FindStringSubmatch(name)
		if m == nil {
			glog.V(2).Infof("Skipping %q: no timestamp", name)
			continue
		}
		if m[1] > bestStamp || (m[1] == bestStamp && name > best) {
			best, bestStamp = name, m[1]
		}
	}
	return best, best != ""
}
