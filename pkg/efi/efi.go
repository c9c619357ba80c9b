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

// Package efi models the pieces of the UEFI boot environment the kernel
// consumes: the firmware memory map handed over at ExitBootServices.
//
// The map is treated as a pre-decoded, read-only sequence of descriptors.
// Decoding the firmware's packed descriptor layout (descriptor_size stride)
// is the loader's job, not this package's.
package efi

import "fmt"

// MemoryType is a UEFI memory region type. Values follow the UEFI
// specification's EFI_MEMORY_TYPE numbering.
type MemoryType uint32

// Memory region types.
const (
	ReservedMemoryType MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
)

var memoryTypeNames = map[MemoryType]string{
	ReservedMemoryType:      "Reserved",
	LoaderCode:              "LoaderCode",
	LoaderData:              "LoaderData",
	BootServicesCode:        "BootServicesCode",
	BootServicesData:        "BootServicesData",
	RuntimeServicesCode:     "RuntimeServicesCode",
	RuntimeServicesData:     "RuntimeServicesData",
	ConventionalMemory:      "ConventionalMemory",
	UnusableMemory:          "Unusable",
	ACPIReclaimMemory:       "ACPIReclaim",
	ACPIMemoryNVS:           "ACPIMemoryNVS",
	MemoryMappedIO:          "MemoryMappedIO",
	MemoryMappedIOPortSpace: "MemoryMappedIOPortSpace",
	PalCode:                 "PalCode",
	PersistentMemory:        "PersistentMemory",
}

func (t MemoryType) String() string {
	if name, ok := memoryTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MemoryType(%d)", uint32(t))
}

// ParseMemoryType returns the MemoryType with the given name, as produced by
// String.
func ParseMemoryType(name string) (MemoryType, error) {
	for t, n := range memoryTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown memory type %q", name)
}

// Attribute is a UEFI memory attribute bit set.
type Attribute uint64

// MemoryRuntime marks a region the firmware needs mapped for runtime
// services after ExitBootServices (EFI_MEMORY_RUNTIME).
const MemoryRuntime Attribute = 1 << 63

// PageSize is the UEFI page unit; NumberOfPages counts these.
const PageSize = 4096

// MemoryDescriptor describes one physical memory region.
type MemoryDescriptor struct {
	// Type is the region type tag.
	Type MemoryType

	// PhysicalStart is the page-aligned physical base of the region.
	PhysicalStart uint64

	// NumberOfPages is the region length in 4 KiB pages.
	NumberOfPages uint64

	// Attribute is the region's attribute bit set.
	Attribute Attribute
}

// Size returns the region length in bytes.
func (d *MemoryDescriptor) Size() uint64 {
	return d.NumberOfPages * PageSize
}

// PhysicalEnd returns the exclusive physical end address of the region.
func (d *MemoryDescriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.Size()
}

// IsRuntime returns true iff the firmware marked the region as needed
// across the runtime boundary.
func (d *MemoryDescriptor) IsRuntime() bool {
	return d.Attribute&MemoryRuntime != 0
}

func (d *MemoryDescriptor) String() string {
	return fmt.Sprintf("[%#012x, %#012x) %s pages=%d attr=%#x",
		d.PhysicalStart, d.PhysicalEnd(), d.Type, d.NumberOfPages, uint64(d.Attribute))
}

// MemoryMap is the ordered descriptor sequence produced by the loader.
// Consumers iterate it once and never mutate it; descriptor order carries no
// meaning beyond firmware convention.
type MemoryMap []MemoryDescriptor
