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

// childTable returns the next-level table reached through entries[index],
// allocating and linking a fresh one if the entry is not yet present.
//
// The same step serves every non-leaf level: PML4 to PDPT, PDPT to PD and
// PD to PT are structurally identical. The operation is idempotent per
// index: a hit costs no allocation and performs no mutation, a miss costs
// exactly one frame.
//
// The entry is linked only after the allocator has produced the frame, so
// no present entry can ever refer to an unallocated frame, even when
// allocation fails mid-sequence.
func (p *PageTables) childTable(entries *PTEs, index uint16) *PTEs {
	pte := &entries[index]
	if pte.Valid() {
		return p.Allocator.LookupPTEs(pte.Address())
	}
	ptes := p.Allocator.NewPTEs()
	if ptes == nil {
		panic("pagetables: out of frames for an intermediate table")
	}
	pte.setPageTable(p, ptes)
	return ptes
}
