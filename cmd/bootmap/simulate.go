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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/wxuefei/jtos/pkg/boot"
	"github.com/wxuefei/jtos/pkg/bootalloc"
	"github.com/wxuefei/jtos/pkg/efi"
	"github.com/wxuefei/jtos/pkg/hostarch"
)

// simPlatform records the activation instead of touching CR3.
type simPlatform struct {
	cr3    uint64
	loaded bool
	halted bool
}

func (p *simPlatform) SetPageTables(cr3 uint64) {
	p.cr3 = cr3
	p.loaded = true
}

func (p *simPlatform) Halt() {
	p.halted = true
}

// Simulate implements subcommands.Command for the "simulate" command.
type Simulate struct{}

// Name implements subcommands.Command.Name.
func (*Simulate) Name() string {
	return "simulate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Simulate) Synopsis() string {
	return "run the full paging bootstrap over a boot description file and report the result"
}

// Usage implements subcommands.Command.Usage.
func (*Simulate) Usage() string {
	return `simulate <spec.yaml>

Builds the page tables exactly as the kernel would at boot, with physical
memory simulated by an anonymous mapping, then reports the CR3 value, the
frames consumed and the reachability of every described region.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Simulate) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Simulate) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	spec, err := loadSpec(f.Arg(0))
	if err != nil {
		fatalf("loading spec: %v", err)
	}
	params, err := spec.buildParams()
	if err != nil {
		fatalf("building boot parameters: %v", err)
	}

	mapper, err := arenaFor(params.MemoryMap)
	if err != nil {
		fatalf("building arena: %v", err)
	}
	defer mapper.Close()
	mapper.Smudge()

	alloc := bootalloc.New(params.MemoryMap, mapper)
	plat := &simPlatform{}
	k := boot.New(alloc, plat)
	k.SetupPaging(params)

	if plat.halted {
		fmt.Println("bootstrap HALTED (fatal condition, see log)")
		return subcommands.ExitFailure
	}
	fmt.Printf("state:            %v\n", k.State())
	fmt.Printf("cr3:              %#x\n", plat.cr3)
	fmt.Printf("frames consumed:  %d\n", alloc.Frames())
	fmt.Println("regions:")
	pt := k.PageTables()
	for i := range params.MemoryMap {
		d := &params.MemoryMap[i]
		verdict := "unmapped"
		if boot.ShouldMap(d) {
			verdict = "identity"
			// Spot-check the first and last page.
			for _, addr := range []uint64{d.PhysicalStart, d.PhysicalEnd() - efi.PageSize} {
				if got, ok := pt.Lookup(hostarch.Addr(addr)); !ok || got != uintptr(addr) {
					verdict = "BROKEN"
				}
			}
		}
		fmt.Printf("  %v -> %s\n", d, verdict)
	}
	return subcommands.ExitSuccess
}

// arenaFor sizes a simulated physical window covering every conventional
// region in the map.
func arenaFor(mm efi.MemoryMap) (*bootalloc.ArenaMapper, error) {
	var base, end uint64
	found := false
	for i := range mm {
		d := &mm[i]
		if d.Type != efi.ConventionalMemory {
			continue
		}
		if !found || d.PhysicalStart < base {
			base = d.PhysicalStart
		}
		if d.PhysicalEnd() > end {
			end = d.PhysicalEnd()
		}
		found = true
	}
	if !found {
		return nil, fmt.Errorf("memory map has no conventional memory to allocate tables from")
	}
	return bootalloc.NewArenaMapper(uintptr(base), uintptr(end-base))
}
