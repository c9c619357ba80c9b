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

package pagetables

import (
	"sync/atomic"

	"github.com/wxuefei/jtos/pkg/hostarch"
)

// Table geometry.
//
// A linear address decomposes, high to low, into four 9-bit table indices
// and a 12-bit page offset:
//
//	63     48 47    39 38    30 29    21 20    12 11         0
//	[ sign  ] [ PML4 ] [ PDPT ] [  PD  ] [  PT  ] [  offset  ]
const (
	entriesPerTable = 512

	pml4Shift = 39
	pdptShift = 30
	pdShift   = 21
	ptShift   = hostarch.PageShift

	indexMask = entriesPerTable - 1
)

// intermediateShifts are the index positions consulted on the way to the
// leaf table, root first. The same get-or-create step runs at each.
var intermediateShifts = [...]uint{pml4Shift, pdptShift, pdShift}

// tableIndex extracts the 9-bit table index at the given bit position.
func tableIndex(addr hostarch.Addr, shift uint) uint16 {
	return uint16(addr>>shift) & indexMask
}

// Indices decomposes a linear address into its four table indices and page
// offset. Composing the pieces back yields the address for any canonical
// input.
func Indices(addr hostarch.Addr) (pml4, pdpt, pd, pt uint16, offset uintptr) {
	return tableIndex(addr, pml4Shift),
		tableIndex(addr, pdptShift),
		tableIndex(addr, pdShift),
		tableIndex(addr, ptShift),
		addr.PageOffset()
}

// isCanonical returns true iff bits 63:47 of addr are a sign extension of
// bit 47, the form required of 4-level linear addresses. Mappings through
// the hole between the halves cannot be expressed and are rejected.
func isCanonical(addr hostarch.Addr) bool {
	sign := addr >> 47
	return sign == 0 || sign == 0x1ffff
}

// Bits in page table entries. The same 64-bit layout applies at every level
// (PML4E, PDPTE, PDE, PTE); only the interpretation of the frame field
// differs (next table vs. data frame).
const (
	present       = 1 << 0  // P
	writable      = 1 << 1  // R/W
	user          = 1 << 2  // U/S
	writeThrough  = 1 << 3  // PWT
	cacheDisabled = 1 << 4  // PCD
	accessed      = 1 << 5  // A
	dirty         = 1 << 6  // D on a leaf; ignored above
	pageSizeBit   = 1 << 7  // PAT on a leaf; PS above
	global        = 1 << 8  // G on a leaf; ignored above

	// addrMask covers the 40-bit physical frame number, address bits
	// 12 through 51.
	addrMask = 0x000ffffffffff000

	// pkShift is the position of the 4-bit protection key on a leaf.
	pkShift = 59

	// executeDisable is XD.
	executeDisable = 1 << 63
)

// PTE is a page table entry: a hardware-defined 64-bit record.
//
// The layout is encoded with explicit shifts and masks rather than a struct
// of bit fields, so the in-memory form is exactly what the MMU reads.
type PTE uint64

// Valid returns true iff this entry is present.
func (p *PTE) Valid() bool {
	return atomic.LoadUint64((*uint64)(p))&present != 0
}

// Address extracts the physical frame address. The result is meaningful
// only if Valid returns true.
func (p *PTE) Address() uintptr {
	return uintptr(atomic.LoadUint64((*uint64)(p)) & addrMask)
}

// Set makes this entry present, writable and supervisor-only, pointing at
// the given page-aligned physical address. All other bits are left zero.
//
// This is the only write path during bootstrap: entries go from zero to set
// exactly once.
func (p *PTE) Set(physical uintptr) {
	atomic.StoreUint64((*uint64)(p), uint64(physical)&addrMask|present|writable)
}

// setPageTable points this entry at the given child table.
//
// The encoding is identical to a leaf Set; at a non-leaf level the frame
// field designates the next table rather than a data frame.
func (p *PTE) setPageTable(pt *PageTables, ptes *PTEs) {
	p.Set(pt.Allocator.PhysicalFor(ptes))
}

// PTEs is a single page table: 512 entries filling one page frame.
type PTEs [entriesPerTable]PTE

// CR3 returns the value to load into the page-table base register for these
// tables: the physical address of the PML4 root. No PCID is in use this
// early, so the low bits stay zero and the load flushes the TLB.
func (p *PageTables) CR3() uint64 {
	return uint64(p.rootPhysical)
}
