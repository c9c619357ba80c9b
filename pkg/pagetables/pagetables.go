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

// Package pagetables builds the x86-64 4-level page-table hierarchy used to
// bring up virtual memory during early boot.
//
// Tables are plain [512]PTE frames. Intermediate tables are allocated on
// demand the first time a mapping needs them and are never reclaimed; the
// bootstrap installs mappings exactly once and hands the finished hierarchy
// to the CPU via CR3. There is deliberately no Unmap, no permission update
// and no huge-page path: those belong to the full memory manager that takes
// over after boot.
package pagetables

import (
	"fmt"

	"github.com/wxuefei/jtos/pkg/hostarch"
)

// An Allocator supplies page frames for tables.
//
// Frames handed out by NewPTEs must be zeroed: a fresh table is reinterpreted
// as 512 entries immediately, and any stale bit pattern would read as a
// spuriously present entry and corrupt the walk.
type Allocator interface {
	// NewPTEs returns a new, zeroed table occupying one page-aligned
	// physical frame, or nil if no frame can be supplied.
	NewPTEs() *PTEs

	// PhysicalFor returns the physical address of the given table.
	PhysicalFor(ptes *PTEs) uintptr

	// LookupPTEs returns the table at the given physical address. The
	// address must have been returned by PhysicalFor.
	LookupPTEs(physical uintptr) *PTEs
}

// PageTables is a single address space: the PML4 root and every table
// reachable from it.
//
// It is built once, single-threaded, before any other execution context
// exists; no locking is required or provided.
type PageTables struct {
	// Allocator is used to allocate tables.
	Allocator Allocator

	// root is the PML4 table.
	root *PTEs

	// rootPhysical is the physical address of root, the value loaded
	// into CR3.
	rootPhysical uintptr
}

// New returns new PageTables with a zeroed root table.
//
// It panics if the allocator cannot supply the root frame; there is nothing
// to map from without one.
func New(a Allocator) *PageTables {
	p := &PageTables{Allocator: a}
	p.root = a.NewPTEs()
	if p.root == nil {
		panic("pagetables: out of frames allocating the root table")
	}
	p.rootPhysical = a.PhysicalFor(p.root)
	return p
}

// Map establishes a mapping of [addr, addr+length) onto
// [physical, physical+length), page by page.
//
// Preconditions, all panic-checked:
//   - addr, length and physical are page-aligned;
//   - addr+length does not overflow and does not cross the canonical hole;
//   - no page in the range is already mapped to a different frame.
//
// Remapping a page to the frame it already translates to is a no-op.
func (p *PageTables) Map(addr hostarch.Addr, length uintptr, physical uintptr) {
	if !addr.IsPageAligned() || length&hostarch.PageMask != 0 || physical&hostarch.PageMask != 0 {
		panic(fmt.Sprintf("pagetables: unaligned mapping %#x+%#x -> %#x", uintptr(addr), length, physical))
	}
	if length == 0 {
		return
	}
	end, ok := addr.AddLength(length)
	if !ok {
		panic(fmt.Sprintf("pagetables: mapping %#x+%#x overflows", uintptr(addr), length))
	}
	if !isCanonical(addr) || !isCanonical(end-1) || (addr>>47 != (end-1)>>47) {
		panic(fmt.Sprintf("pagetables: mapping [%#x, %#x) spans non-canonical range", uintptr(addr), uintptr(end)))
	}
	for ; addr < end; addr, physical = addr+hostarch.PageSize, physical+hostarch.PageSize {
		p.mapPage(addr, physical)
	}
}

// IdentityMap establishes a mapping where every virtual page in
// [addr, addr+length) translates to the physical page of the same address.
func (p *PageTables) IdentityMap(addr hostarch.Addr, length uintptr) {
	p.Map(addr, length, uintptr(addr))
}

// mapPage installs the leaf entry for a single page.
func (p *PageTables) mapPage(addr hostarch.Addr, physical uintptr) {
	table := p.root
	for _, shift := range intermediateShifts {
		table = p.childTable(table, tableIndex(addr, shift))
	}
	pte := &table[tableIndex(addr, ptShift)]
	if pte.Valid() {
		if cur := pte.Address(); cur != physical {
			panic(fmt.Sprintf("pagetables: page %#x already mapped to %#x, refusing remap to %#x", uintptr(addr), cur, physical))
		}
		return
	}
	pte.Set(physical)
}

// Lookup translates a linear address through the tables.
//
// It returns the backing physical address and true, or 0 and false if any
// level of the walk is not present.
func (p *PageTables) Lookup(addr hostarch.Addr) (physical uintptr, ok bool) {
	table := p.root
	for _, shift := range intermediateShifts {
		pte := &table[tableIndex(addr, shift)]
		if !pte.Valid() {
			return 0, false
		}
		table = p.Allocator.LookupPTEs(pte.Address())
	}
	pte := &table[tableIndex(addr, ptShift)]
	if !pte.Valid() {
		return 0, false
	}
	return pte.Address() + addr.PageOffset(), true
}
