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
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Image is one of the images a content directory must provide.
type Image int

const (
	GPT Image = iota
	AcoreCfg
	BL31
	OPTEE
	UBoot
	VBMeta
	Boot
	System
	BaseSystem
	SPLDDR
	numImages
)

// RequiredImages returns the checklist in flashing order.
func RequiredImages() []Image {
	r := make([]Image, 0, numImages)
	for i := GPT; i < numImages; i++ {
		r = append(r, i)
	}
	return r
}

// FileName returns the image's file name for the given board hostname.
func (i Image) FileName(hostname string) string {
	switch i {
	case GPT:
		return fmt.Sprintf("gpt_main_%s_emmc.img", hostname)
	case AcoreCfg:
		return "acore_cfg_hsm_signed.img"
	case BL31:
		return "bl31.img"
	case OPTEE:
		return "optee.img"
	case UBoot:
		return "uboot.img"
	case VBMeta:
		return "vbmeta.img"
	case Boot:
		return "boot.img"
	case System:
		return "system.img"
	case BaseSystem:
		return "basesystem.img"
	case SPLDDR:
		return "spl_ddr_hsm_signed.img"
	}
	panic(fmt.Sprintf("unknown image %d", int(i)))
}

// Partition returns the partition name the image is written to. Images
// written to an A/B pair get the "_a" and "_b" suffixes appended.
func (i Image) Partition() string {
	switch i {
	case GPT:
		return "gpt"
	case AcoreCfg:
		return "acore_cfg"
	case BL31:
		return "bl31"
	case OPTEE:
		return "optee"
	case UBoot:
		return "uboot"
	case VBMeta:
		return "vbmeta"
	case Boot:
		return "boot"
	case System:
		return "system"
	case BaseSystem:
		return "basesystem"
	case SPLDDR:
		return "spl_ddr"
	}
	panic(fmt.Sprintf("unknown image %d", int(i)))
}

// Timeout bounds a single attempt at writing the image over ethernet.
func (i Image) Timeout() time.Duration {
	switch i {
	case GPT:
		return 6 * time.Second
	case AcoreCfg, BL31, OPTEE, VBMeta:
		return 30 * time.Second
	case UBoot, Boot:
		return 60 * time.Second
	case BaseSystem:
		return 300 * time.Second
	case System:
		return 600 * time.Second
	case SPLDDR:
		return 1000 * time.Second
	}
	panic(fmt.Sprintf("unknown image %d", int(i)))
}

// RequiredFiles returns the file names of the checklist for hostname.
func RequiredFiles(hostname string) []string {
	r := make([]string, 0, numImages)
	for _, i := range RequiredImages() {
		r = append(r, i.FileName(hostname))
	}
	return r
}

// oemTimeout bounds a single attempt at an oem command.
const oemTimeout = 30 * time.Second

// Operation is a single invocation of the flashing client.
type Operation struct {
	// Verb is "oem" or "flash".
	Verb string
	// Target is the oem argument, or the partition being written.
	Target string
	// Image is the path of the image written by a flash operation.
	Image   string
	Timeout time.Duration
	// SparseChunk, when set, splits the transfer into chunks of this size.
	SparseChunk string
}

// Args returns the flashing client arguments, excluding the device selector.
func (o Operation) Args() []string {
	var a []string
	if o.SparseChunk != "" {
		a = append(a, "-S", o.SparseChunk)
	}
	a = append(a, o.Verb)
	for _, s := range []string{o.Target, o.Image} {
		if s != "" {
			a = append(a, s)
		}
	}
	return a
}

func (o Operation) String() string {
	return strings.Join(o.Args(), " ")
}

// Plan is the ordered list of operations that provisions a board from a
// content directory.
type Plan struct {
	Dir string
	Ops []Operation
}

// PlanOptions tunes the generated operations.
type PlanOptions struct {
	// SparseLimitBytes is the image size above which sparse transfers are
	// used. Zero disables them.
	SparseLimitBytes int64
	SparseChunk      string
}

// BuildPlan returns the fixed flashing sequence for the images in dir.
// The GPT goes first, then the A/B pairs on the block interface, then the
// secondary loader pair on the MTD interface.
func BuildPlan(dir, hostname string, opts PlanOptions) (Plan, error) {
	p := Plan{Dir: dir}
	oem := func(arg string) {
		p.Ops = append(p.Ops, Operation{Verb: "oem", Target: arg, Timeout: oemTimeout})
	}
	var err error
	flash := func(part string, img Image) {
		if err != nil {
			return
		}
		op := Operation{
			Verb:    "flash",
			Target:  part,
			Image:   filepath.Join(dir, img.FileName(hostname)),
			Timeout: img.Timeout(),
		}
		if op.SparseChunk, err = sparseChunk(op.Image, opts); err != nil {
			return
		}
		p.Ops = append(p.Ops, op)
	}

	oem("interface:blk")
	oem("bootdevice:mmc")
	flash(GPT.Partition(), GPT)
	for _, img := range []Image{AcoreCfg, BL31, OPTEE, UBoot, VBMeta, Boot, System, BaseSystem} {
		flash(img.Partition()+"_a", img)
		flash(img.Partition()+"_b", img)
	}
	oem("interface:mtd")
	flash(SPLDDR.Partition()+"_a", SPLDDR)
	flash(SPLDDR.Partition()+"_b", SPLDDR)
	if err != nil {
		return Plan{}, err
	}
	return p, nil
}

func sparseChunk(path string, opts PlanOptions) (string, error) {
	if opts.SparseLimitBytes <= 0 {
		return "", nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if fi.Size() > opts.SparseLimitBytes {
		return opts.SparseChunk, nil
	}
	return "", nil
}
