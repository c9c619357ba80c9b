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

package bootalloc

import (
	"fmt"
	"unsafe"

	"github.com/wxuefei/jtos/pkg/hostarch"
	"github.com/wxuefei/jtos/pkg/memutil"
	"github.com/wxuefei/jtos/pkg/pagetables"
)

// IdentityMapper reaches physical frames through identity addressing. It is
// only valid while the CPU still addresses memory physically, i.e. between
// ExitBootServices and the CR3 load that this bootstrap performs.
type IdentityMapper struct{}

// FrameAt implements PhysMapper.FrameAt.
func (IdentityMapper) FrameAt(physical uintptr) *pagetables.PTEs {
	return (*pagetables.PTEs)(unsafe.Pointer(physical))
}

// ArenaMapper simulates a window of physical memory with one page-aligned
// anonymous mapping. It backs host-side tests and the bootmap tool; the
// window must cover every conventional-memory frame the allocator may hand
// out.
type ArenaMapper struct {
	base  uintptr
	arena []byte
}

// NewArenaMapper returns an ArenaMapper simulating physical addresses
// [base, base+size). Both must be page-aligned.
func NewArenaMapper(base, size uintptr) (*ArenaMapper, error) {
	if base&hostarch.PageMask != 0 || size&hostarch.PageMask != 0 || size == 0 {
		return nil, fmt.Errorf("arena [%#x, %#x+%#x) is not a whole number of pages", base, base, size)
	}
	arena, err := memutil.MapSlice(size)
	if err != nil {
		return nil, fmt.Errorf("mapping %d-byte arena: %w", size, err)
	}
	return &ArenaMapper{base: base, arena: arena}, nil
}

// FrameAt implements PhysMapper.FrameAt.
func (m *ArenaMapper) FrameAt(physical uintptr) *pagetables.PTEs {
	if physical < m.base || physical+hostarch.PageSize > m.base+uintptr(len(m.arena)) {
		panic(fmt.Sprintf("bootalloc: frame %#x outside simulated window [%#x, %#x)", physical, m.base, m.base+uintptr(len(m.arena))))
	}
	return (*pagetables.PTEs)(unsafe.Pointer(&m.arena[physical-m.base]))
}

// Smudge fills the simulated window with a non-zero pattern, standing in for
// firmware leftovers in conventional memory. Tests use it to prove that
// fresh tables are zeroed before use.
func (m *ArenaMapper) Smudge() {
	for i := range m.arena {
		m.arena[i] = 0xa5
	}
}

// Close releases the simulated window.
func (m *ArenaMapper) Close() error {
	return memutil.UnmapSlice(m.arena)
}
