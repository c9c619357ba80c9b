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

// Package hostarch contains host architecture address constants and
// operations shared by the memory bootstrap packages.
package hostarch

// Page size constants for x86-64 4 KiB pages.
const (
	// PageShift is the log2 of PageSize.
	PageShift = 12

	// PageSize is the size of a page frame and of a page table.
	PageSize = 1 << PageShift

	// PageMask covers the page-offset bits of an address.
	PageMask = PageSize - 1
)

// Addr represents a linear (virtual) or physical address.
type Addr uintptr

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v &^ PageMask
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageMask).RoundDown()
	ok = addr >= v
	return
}

// IsPageAligned returns true iff v is aligned to a page boundary.
func (v Addr) IsPageAligned() bool {
	return v&PageMask == 0
}

// AddLength returns v + length. ok is true iff the sum did not overflow.
func (v Addr) AddLength(length uintptr) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = end >= v
	return
}

// PageOffset returns the offset of v into its containing page.
func (v Addr) PageOffset() uintptr {
	return uintptr(v & PageMask)
}
