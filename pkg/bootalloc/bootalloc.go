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

// Package bootalloc implements the boot-time physical frame allocator.
//
// It bump-allocates 4 KiB frames from the conventional-memory regions of the
// firmware memory map. Frames are never freed: once the kernel proper is up,
// a real memory manager takes inventory and supersedes this allocator.
package bootalloc

import (
	"github.com/wxuefei/jtos/pkg/efi"
	"github.com/wxuefei/jtos/pkg/hostarch"
	"github.com/wxuefei/jtos/pkg/pagetables"
)

// A PhysMapper gives access to the memory behind a physical frame address.
//
// On the machine, physical frames are reachable directly while the firmware's
// identity addressing is still in effect (IdentityMapper). On a host,
// physical memory is simulated by an arena (ArenaMapper).
type PhysMapper interface {
	// FrameAt returns the table storage backing the given page-aligned
	// physical frame address.
	FrameAt(physical uintptr) *pagetables.PTEs
}

// Allocator hands out physical page frames from the firmware memory map and
// implements pagetables.Allocator on top of a PhysMapper.
type Allocator struct {
	mm     efi.MemoryMap
	mapper PhysMapper

	// region indexes the conventional-memory descriptor currently being
	// consumed; next is the next candidate frame within it, or zero at
	// the start of a region.
	region int
	next   uintptr

	// frames counts frames handed out.
	frames uint64

	// byPhysical and byTable track the tables built from allocated
	// frames, keyed both ways.
	byPhysical map[uintptr]*pagetables.PTEs
	byTable    map[*pagetables.PTEs]uintptr
}

// New returns an Allocator drawing frames from the conventional-memory
// regions of mm, accessed through mapper.
func New(mm efi.MemoryMap, mapper PhysMapper) *Allocator {
	return &Allocator{
		mm:         mm,
		mapper:     mapper,
		byPhysical: make(map[uintptr]*pagetables.PTEs),
		byTable:    make(map[*pagetables.PTEs]uintptr),
	}
}

// Frames returns the number of frames handed out so far.
func (a *Allocator) Frames() uint64 {
	return a.frames
}

// AllocFrame reserves the next free conventional-memory frame and returns
// its page-aligned physical address. It returns false when every
// conventional frame has been consumed.
//
// Frame zero is never handed out: a zero frame field in an entry would be
// indistinguishable from a cleared entry when inspecting tables.
func (a *Allocator) AllocFrame() (uintptr, bool) {
	for a.region < len(a.mm) {
		d := &a.mm[a.region]
		if d.Type != efi.ConventionalMemory {
			a.region++
			continue
		}
		if a.next < uintptr(d.PhysicalStart) {
			a.next = uintptr(d.PhysicalStart)
		}
		if a.next == 0 {
			a.next = hostarch.PageSize
		}
		if a.next < uintptr(d.PhysicalEnd()) {
			frame := a.next
			a.next += hostarch.PageSize
			a.frames++
			return frame, true
		}
		a.region++
		a.next = 0
	}
	return 0, false
}

// NewPTEs implements pagetables.Allocator.NewPTEs.
//
// The frame is explicitly zeroed before it is returned: the firmware makes
// no promise about the contents of conventional memory, and stale bits would
// read back as present entries.
func (a *Allocator) NewPTEs() *pagetables.PTEs {
	frame, ok := a.AllocFrame()
	if !ok {
		return nil
	}
	ptes := a.mapper.FrameAt(frame)
	*ptes = pagetables.PTEs{}
	a.byPhysical[frame] = ptes
	a.byTable[ptes] = frame
	return ptes
}

// PhysicalFor implements pagetables.Allocator.PhysicalFor.
func (a *Allocator) PhysicalFor(ptes *pagetables.PTEs) uintptr {
	physical, ok := a.byTable[ptes]
	if !ok {
		panic("bootalloc: PhysicalFor on a table not owned by this allocator")
	}
	return physical
}

// LookupPTEs implements pagetables.Allocator.LookupPTEs.
func (a *Allocator) LookupPTEs(physical uintptr) *pagetables.PTEs {
	ptes, ok := a.byPhysical[physical]
	if !ok {
		panic("bootalloc: LookupPTEs on an address not owned by this allocator")
	}
	return ptes
}
