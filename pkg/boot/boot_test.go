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

package boot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wxuefei/jtos/pkg/bootalloc"
	"github.com/wxuefei/jtos/pkg/efi"
	"github.com/wxuefei/jtos/pkg/hostarch"
	"github.com/wxuefei/jtos/pkg/pagetables"
)

// fakePlatform records the CR3 load and halt requests.
type fakePlatform struct {
	cr3    uint64
	loaded bool
	halted bool
}

func (p *fakePlatform) SetPageTables(cr3 uint64) {
	p.cr3 = cr3
	p.loaded = true
}

func (p *fakePlatform) Halt() {
	p.halted = true
}

func TestShouldMap(t *testing.T) {
	for _, tc := range []struct {
		desc efi.MemoryDescriptor
		want bool
	}{
		{efi.MemoryDescriptor{Type: efi.MemoryMappedIO, Attribute: efi.MemoryRuntime}, true},
		{efi.MemoryDescriptor{Type: efi.LoaderCode}, true},
		{efi.MemoryDescriptor{Type: efi.LoaderData}, true},
		{efi.MemoryDescriptor{Type: efi.ConventionalMemory}, false},
		{efi.MemoryDescriptor{Type: efi.BootServicesData}, false},
		{efi.MemoryDescriptor{Type: efi.ReservedMemoryType}, false},
	} {
		if got := ShouldMap(&tc.desc); got != tc.want {
			t.Errorf("ShouldMap(%v) = %v, want %v", &tc.desc, got, tc.want)
		}
	}
}

func TestPolicySelection(t *testing.T) {
	// One runtime-reserved region, one loader-code region, one plain
	// region: exactly the first two are reachable afterwards.
	mm := efi.MemoryMap{
		{Type: efi.RuntimeServicesData, PhysicalStart: 0x200000, NumberOfPages: 2, Attribute: efi.MemoryRuntime},
		{Type: efi.LoaderCode, PhysicalStart: 0x300000, NumberOfPages: 2},
		{Type: efi.ConventionalMemory, PhysicalStart: 0x400000, NumberOfPages: 2},
	}
	plat := &fakePlatform{}
	k := New(pagetables.NewRuntimeAllocator(), plat)
	k.SetupPaging(Params{MemoryMap: mm})

	if plat.halted {
		t.Fatal("setup halted")
	}
	pt := k.PageTables()
	for _, mapped := range []uintptr{0x200000, 0x201000, 0x300000, 0x301000} {
		if got, ok := pt.Lookup(hostarch.Addr(mapped)); !ok || got != mapped {
			t.Errorf("Lookup(%#x) = %#x, %v; want identity", mapped, got, ok)
		}
	}
	for _, unmapped := range []uintptr{0x400000, 0x401000, 0x1ff000, 0x202000} {
		if got, ok := pt.Lookup(hostarch.Addr(unmapped)); ok {
			t.Errorf("Lookup(%#x) = %#x, want not present", unmapped, got)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	// The loader-data region becomes reachable identity-mapped; the page
	// just past it does not. The arena-backed frame allocator stands in
	// for real conventional memory.
	mm := efi.MemoryMap{
		{Type: efi.LoaderData, PhysicalStart: 0x100000, NumberOfPages: 16},
		{Type: efi.ConventionalMemory, PhysicalStart: 0x800000, NumberOfPages: 64},
	}
	mapper, err := bootalloc.NewArenaMapper(0x800000, 64*hostarch.PageSize)
	if err != nil {
		t.Fatalf("NewArenaMapper: %v", err)
	}
	defer mapper.Close()
	mapper.Smudge()
	alloc := bootalloc.New(mm, mapper)

	plat := &fakePlatform{}
	k := New(alloc, plat)
	k.SetupPaging(Params{MemoryMap: mm})

	if plat.halted {
		t.Fatal("setup halted")
	}
	if got, want := k.State(), Active; got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}
	if !plat.loaded {
		t.Fatal("CR3 was never loaded")
	}
	if plat.cr3 != k.PageTables().CR3() {
		t.Errorf("platform saw CR3 %#x, tables report %#x", plat.cr3, k.PageTables().CR3())
	}

	pt := k.PageTables()
	for addr := uintptr(0x100000); addr < 0x110000; addr += hostarch.PageSize {
		got, ok := pt.Lookup(hostarch.Addr(addr))
		if !ok || got != addr {
			t.Errorf("Lookup(%#x) = %#x, %v; want identity", addr, got, ok)
		}
	}
	if got, ok := pt.Lookup(0x110000); ok {
		t.Errorf("Lookup(0x110000) = %#x, want not present", got)
	}
	// Byte-granularity translation inside the region.
	if got, ok := pt.Lookup(0x10ffff); !ok || got != 0x10ffff {
		t.Errorf("Lookup(0x10ffff) = %#x, %v; want identity", got, ok)
	}
}

func TestKernelAndFramebufferMappings(t *testing.T) {
	plat := &fakePlatform{}
	k := New(pagetables.NewRuntimeAllocator(), plat)
	k.SetupPaging(Params{
		MemoryMap: efi.MemoryMap{
			{Type: efi.LoaderData, PhysicalStart: 0x100000, NumberOfPages: 1},
		},
		Framebuffer: &Framebuffer{Base: 0x80000000, Size: 0x2800}, // 2.5 pages
		KernelPhys:  0x200000,
		KernelVirt:  0xffff800000000000,
		KernelSize:  0x1800, // 1.5 pages
	})

	if plat.halted {
		t.Fatal("setup halted")
	}
	pt := k.PageTables()

	type lookup struct {
		Physical uintptr
		OK       bool
	}
	got := map[string]lookup{}
	for name, addr := range map[string]hostarch.Addr{
		"kernel first page":      0xffff800000000000,
		"kernel rounded-up page": 0xffff800000001000,
		"kernel past image":      0xffff800000002000,
		"framebuffer first":      0x80000000,
		"framebuffer last":       0x80002000,
		"framebuffer past":       0x80003000,
		"loader data":            0x100000,
	} {
		p, ok := pt.Lookup(addr)
		got[name] = lookup{p, ok}
	}
	want := map[string]lookup{
		"kernel first page":      {0x200000, true},
		"kernel rounded-up page": {0x201000, true},
		"kernel past image":      {0, false},
		"framebuffer first":      {0x80000000, true},
		"framebuffer last":       {0x80002000, true},
		"framebuffer past":       {0, false},
		"loader data":            {0x100000, true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("translations mismatch (-want +got):\n%s", diff)
	}
}

func TestExhaustionHalts(t *testing.T) {
	// Enough for the root and one intermediate table only.
	plat := &fakePlatform{}
	k := New(pagetables.NewLimitedRuntimeAllocator(2), plat)
	k.SetupPaging(Params{
		MemoryMap: efi.MemoryMap{
			{Type: efi.LoaderData, PhysicalStart: 0x100000, NumberOfPages: 1},
		},
	})

	if !plat.halted {
		t.Fatal("exhaustion did not halt the platform")
	}
	if plat.loaded {
		t.Error("CR3 was loaded despite a fatal failure")
	}
	if k.State() == Active {
		t.Error("state reached Active despite a fatal failure")
	}
}

func TestNoReentry(t *testing.T) {
	plat := &fakePlatform{}
	k := New(pagetables.NewRuntimeAllocator(), plat)
	k.SetupPaging(Params{})
	if plat.halted {
		t.Fatal("first setup halted")
	}

	k.SetupPaging(Params{})
	if !plat.halted {
		t.Error("second SetupPaging did not halt")
	}
}
