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
	"testing"

	"github.com/wxuefei/jtos/pkg/hostarch"
)

func TestPTERoundTrip(t *testing.T) {
	// Page-aligned addresses representable in the 40-bit frame field.
	for _, physical := range []uintptr{
		0x0,
		0x1000,
		0x100000,
		0x7fff_f000,
		1 << 32,
		1<<52 - hostarch.PageSize, // highest representable frame
	} {
		var pte PTE
		pte.Set(physical)
		if !pte.Valid() {
			t.Errorf("entry for %#x: Valid() = false after Set", physical)
		}
		if got := pte.Address(); got != physical {
			t.Errorf("entry for %#x: Address() = %#x", physical, got)
		}
	}
}

func TestPTEZeroNotValid(t *testing.T) {
	var pte PTE
	if pte.Valid() {
		t.Error("zero entry reports Valid() = true")
	}
}

func TestIndicesCompose(t *testing.T) {
	for _, addr := range []hostarch.Addr{
		0x0,
		0x1000,
		0x100000,
		0x400000,
		0x7ffffffff123,
		0x00007f0000000000,
		0x0000123456789abc,
	} {
		pml4, pdpt, pd, pt, offset := Indices(addr)
		composed := hostarch.Addr(pml4)<<pml4Shift |
			hostarch.Addr(pdpt)<<pdptShift |
			hostarch.Addr(pd)<<pdShift |
			hostarch.Addr(pt)<<ptShift |
			hostarch.Addr(offset)
		if composed != addr {
			t.Errorf("Indices(%#x) composes back to %#x", addr, composed)
		}
	}
}

func TestIndicesRange(t *testing.T) {
	pml4, pdpt, pd, pt, offset := Indices(^hostarch.Addr(0))
	for name, idx := range map[string]uint16{"pml4": pml4, "pdpt": pdpt, "pd": pd, "pt": pt} {
		if idx != entriesPerTable-1 {
			t.Errorf("%s index of all-ones address = %d, want %d", name, idx, entriesPerTable-1)
		}
	}
	if offset != hostarch.PageMask {
		t.Errorf("offset of all-ones address = %#x, want %#x", offset, uintptr(hostarch.PageMask))
	}
}

func TestCanonical(t *testing.T) {
	for addr, want := range map[hostarch.Addr]bool{
		0x0:                true,
		0x00007fffffffffff: true,
		0x0000800000000000: false,
		0xffff7fffffffffff: false,
		0xffff800000000000: true,
		^hostarch.Addr(0):  true,
	} {
		if got := isCanonical(addr); got != want {
			t.Errorf("isCanonical(%#x) = %v, want %v", addr, got, want)
		}
	}
}
