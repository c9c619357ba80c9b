// Copyright 2024 The jtos Authors.
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

// Package boot wires the virtual-memory bootstrap together: it decides which
// firmware-described regions survive the switch to paging, builds the page
// tables for them and performs the one-shot activation.
package boot

import (
	"github.com/wxuefei/jtos/pkg/efi"
	"github.com/wxuefei/jtos/pkg/hostarch"
	"github.com/wxuefei/jtos/pkg/log"
	"github.com/wxuefei/jtos/pkg/pagetables"
)

// Framebuffer describes the loader-provided framebuffer. The bootstrap
// consumes it purely as a physical region to keep visible; rendering lives
// elsewhere.
type Framebuffer struct {
	// Base is the physical base address of the framebuffer.
	Base uintptr

	// Size is the framebuffer length in bytes, not necessarily
	// page-aligned.
	Size uintptr
}

// Params carries everything the loader hands the kernel that the memory
// bootstrap consumes.
type Params struct {
	// MemoryMap is the firmware memory map captured at ExitBootServices.
	MemoryMap efi.MemoryMap

	// Framebuffer, if non-nil, is identity-mapped so the console keeps
	// working after activation.
	Framebuffer *Framebuffer

	// KernelPhys and KernelVirt are the kernel image's physical load
	// address and its linked virtual base. KernelSize is the image size
	// in bytes, including .bss; zero disables the kernel mapping.
	KernelPhys uintptr
	KernelVirt uintptr
	KernelSize uintptr
}

// Platform is the machine-specific surface the bootstrap drives.
//
// ring0.Platform is the real implementation; tests and the bootmap tool
// substitute recorders.
type Platform interface {
	// SetPageTables loads the given CR3 value, activating the new
	// address space. Irreversible.
	SetPageTables(cr3 uint64)

	// Halt stops the machine. Called on fatal conditions, for which no
	// recovery path exists this early; it is expected not to return on
	// real hardware.
	Halt()
}

// State tracks the bootstrap's progress. Transitions are strictly forward.
type State int

const (
	// Unpaged: the CPU still uses the firmware's addressing.
	Unpaged State = iota

	// Building: the root is allocated and regions are being mapped.
	Building

	// Active: CR3 has been loaded; translation is live.
	Active
)

func (s State) String() string {
	switch s {
	case Unpaged:
		return "unpaged"
	case Building:
		return "building"
	case Active:
		return "active"
	default:
		return "invalid"
	}
}

// Kernel is the boot-time kernel context: one address space and the
// platform it will be installed on.
type Kernel struct {
	alloc pagetables.Allocator
	plat  Platform

	state State
	pt    *pagetables.PageTables
}

// New returns a Kernel in the Unpaged state.
func New(alloc pagetables.Allocator, plat Platform) *Kernel {
	return &Kernel{
		alloc: alloc,
		plat:  plat,
		state: Unpaged,
	}
}

// State returns the bootstrap state.
func (k *Kernel) State() State {
	return k.state
}

// PageTables returns the address space under construction, or nil before
// SetupPaging has run. Exposed for inspection by tests and tooling.
func (k *Kernel) PageTables() *pagetables.PageTables {
	return k.pt
}

// ShouldMap is the identity-mapping policy: it reports whether a
// firmware-described region must stay visible once paging is enabled.
//
// First matching rule wins: regions the firmware marked runtime-reserved,
// then loader code, then loader data. Everything else, free conventional
// memory included, is deliberately left unmapped for the full memory manager
// to claim later.
func ShouldMap(d *efi.MemoryDescriptor) bool {
	switch {
	case d.IsRuntime():
		return true
	case d.Type == efi.LoaderCode:
		return true
	case d.Type == efi.LoaderData:
		return true
	default:
		return false
	}
}

// SetupPaging runs the full Building->Active sequence exactly once: it
// builds a fresh hierarchy, maps the kernel image, the policy-selected
// firmware regions and the framebuffer, and loads CR3.
//
// It returns only on success. Any fatal condition (frame exhaustion, a
// contract violation in the inputs) halts the platform instead of returning
// an error; there is no caller that could handle one.
func (k *Kernel) SetupPaging(p Params) {
	if k.state != Unpaged {
		log.Warningf("SetupPaging called in state %v", k.state)
		k.plat.Halt()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warningf("fatal during paging setup: %v", r)
			k.plat.Halt()
		}
	}()

	log.Debugf("> SetupPaging")
	k.state = Building
	k.pt = pagetables.New(k.alloc)

	if p.KernelSize != 0 {
		k.mapKernel(p.KernelVirt, p.KernelPhys, p.KernelSize)
	}
	k.mapBootRegions(p.MemoryMap)
	if p.Framebuffer != nil {
		k.mapFramebuffer(p.Framebuffer)
	}

	log.Debugf("loading CR3 = %#x", k.pt.CR3())
	k.plat.SetPageTables(k.pt.CR3())
	k.state = Active
	log.Infof("paging active, root at %#x", k.pt.CR3())
	log.Debugf("< SetupPaging")
}

// mapBootRegions applies the identity-mapping policy over the firmware
// memory map, descriptor by descriptor.
func (k *Kernel) mapBootRegions(mm efi.MemoryMap) {
	log.Debugf("> mapBootRegions")
	for i := range mm {
		d := &mm[i]
		if !ShouldMap(d) {
			continue
		}
		log.Debugf("identity-mapping %v", d)
		k.pt.IdentityMap(hostarch.Addr(d.PhysicalStart), uintptr(d.Size()))
	}
	log.Debugf("< mapBootRegions")
}

// mapKernel maps the kernel image's virtual range onto its physical load
// address.
func (k *Kernel) mapKernel(virt, phys, size uintptr) {
	length, ok := hostarch.Addr(size).RoundUp()
	if !ok {
		panic("kernel image size overflows")
	}
	log.Debugf("mapping kernel %#x -> %#x (%#x bytes)", virt, phys, uintptr(length))
	k.pt.Map(hostarch.Addr(virt), uintptr(length), phys)
}

// mapFramebuffer identity-maps the framebuffer region, widened to whole
// pages.
func (k *Kernel) mapFramebuffer(fb *Framebuffer) {
	base := hostarch.Addr(fb.Base).RoundDown()
	end, ok := hostarch.Addr(fb.Base + fb.Size).RoundUp()
	if !ok {
		panic("framebuffer region overflows")
	}
	log.Debugf("mapping framebuffer [%#x, %#x)", uintptr(base), uintptr(end))
	k.pt.IdentityMap(base, uintptr(end-base))
}
