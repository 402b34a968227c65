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

package boot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/boardfarm/bspflash/api"
	"github.com/golang/glog"
)

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	addrShape  = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

	// addressPatterns are tried in order. The first capture group of each
	// match is the address.
	addressPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"board ip label", regexp.MustCompile(`板卡IP地址\s*[:：]\s*(\d{1,3}(?:\.\d{1,3}){3})\b`)},
		{"fastboot mode label", regexp.MustCompile(`成功进入fastboot模式\s*[，,]\s*板卡IP\s*[:：]\s*(\d{1,3}(?:\.\d{1,3}){3})\b`)},
		{"private range", regexp.MustCompile(`\b(192\.168\.\d{1,3}\.\d{1,3})\b`)},
	}
)

// Printable drops terminal escape sequences and non-printable runes from s,
// keeping line structure. Carriage returns become newlines.
func Printable(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == '\r':
			b.WriteRune('\n')
		case r == utf8.RuneError:
		case unicode.IsPrint(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractAddress scans boot helper output for the board's IPv4 address.
// The last match of the first pattern that matches at all is returned; the
// empty string means no pattern matched.
func ExtractAddress(captured string) string {
	text := Printable(captured)
	for _, p := range addressPatterns {
		m := p.re.FindAllStringSubmatch(text, -1)
		if len(m) == 0 {
			continue
		}
		addr := m[len(m)-1][1]
		glog.V(1).Infof("Found board address %s using %s pattern (%d match(es))", addr, p.name, len(m))
		return addr
	}
	return ""
}

// ValidateAddress checks that s looks like a dotted-quad IPv4 address.
// Reachability is not checked.
func ValidateAddress(s string) error {
	if !addrShape.MatchString(s) {
		return api.InputError{Input: s, Reason: "board address must be four dot-separated groups of 1-3 digits"}
	}
	return nil
}

// PromptAddress asks the operator for the board address on out and reads a
// single line from in.
func PromptAddress(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Could not find the board IP address in the boot output.\nEnter board IP address: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read board address: %w", err)
	}
	addr := strings.TrimSpace(line)
	if err := ValidateAddress(addr); err != nil {
		return "", err
	}
	return addr, nil
}
