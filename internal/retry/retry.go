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

// Package retry runs fallible operations a bounded number of times with a
// fixed delay between attempts.
package retry

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
)

// Policy describes how often, and how far apart, an operation is attempted.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Delay is the pause between consecutive tries.
	Delay time.Duration
}

// Operation is the unit of work retried by a Policy.
type Operation func(ctx context.Context) error

// Do runs op until it succeeds, the attempts are exhausted, or ctx is done.
// It returns the number of attempts made and the last error seen.
// Errors wrapped with Permanent are not retried.
func (p Policy) Do(ctx context.Context, label string, op Operation) (int, error) {
	attempts := 0
	max := p.Attempts
	if max < 1 {
		max = 1
	}
	var bo backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	bo = backoff.WithMaxRetries(bo, uint64(max-1))
	bo = backoff.WithContext(bo, ctx)

	err := backoff.RetryNotify(func() error {
		attempts++
		return op(ctx)
	}, bo, func(err error, next time.Duration) {
		glog.Warningf("%s: attempt %d/%d failed, retrying in %v: %v", label, attempts, max, next, err)
	})
	return attempts, err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
