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

import "github.com/wxuefei/jtos/pkg/hostarch"

// runtimeAllocatorBase is the fabricated physical address of the first frame
// handed out by a RuntimeAllocator. Any page-aligned non-zero value works;
// this one keeps test output readable.
const runtimeAllocatorBase uintptr = 0x10000000

// RuntimeAllocator is an Allocator backed by ordinary runtime memory, with
// fabricated physical addresses. It exists for tests and host-side tools;
// on the machine the boot frame allocator is used instead.
type RuntimeAllocator struct {
	// limit, if non-zero, caps the number of frames handed out. Used to
	// exercise exhaustion paths.
	limit int

	// next is the next fabricated physical address.
	next uintptr

	// byPhysical indexes allocated tables by fabricated address.
	byPhysical map[uintptr]*PTEs

	// byTable is the reverse of byPhysical.
	byTable map[*PTEs]uintptr
}

// NewRuntimeAllocator returns a RuntimeAllocator with no frame limit.
func NewRuntimeAllocator() *RuntimeAllocator {
	return NewLimitedRuntimeAllocator(0)
}

// NewLimitedRuntimeAllocator returns a RuntimeAllocator that refuses to hand
// out more than limit frames. A limit of zero means unlimited.
func NewLimitedRuntimeAllocator(limit int) *RuntimeAllocator {
	return &RuntimeAllocator{
		limit:      limit,
		next:       runtimeAllocatorBase,
		byPhysical: make(map[uintptr]*PTEs),
		byTable:    make(map[*PTEs]uintptr),
	}
}

// Allocated returns the number of frames handed out so far.
func (a *RuntimeAllocator) Allocated() int {
	return len(a.byPhysical)
}

// NewPTEs implements Allocator.NewPTEs. The runtime zeroes the frame.
func (a *RuntimeAllocator) NewPTEs() *PTEs {
	if a.limit != 0 && len(a.byPhysical) >= a.limit {
		return nil
	}
	ptes := new(PTEs)
	physical := a.next
	a.next += hostarch.PageSize
	a.byPhysical[physical] = ptes
	a.byTable[ptes] = physical
	return ptes
}

// PhysicalFor implements Allocator.PhysicalFor.
func (a *RuntimeAllocator) PhysicalFor(ptes *PTEs) uintptr {
	physical, ok := a.byTable[ptes]
	if !ok {
		panic("pagetables: PhysicalFor on a table not owned by this allocator")
	}
	return physical
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *RuntimeAllocator) LookupPTEs(physical uintptr) *PTEs {
	ptes, ok := a.byPhysical[physical]
	if !ok {
		panic("pagetables: LookupPTEs on an address not owned by this allocator")
	}
	return ptes
}
