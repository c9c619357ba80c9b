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
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/wxuefei/jtos/pkg/boot"
	"github.com/wxuefei/jtos/pkg/efi"
)

// BootSpec mirrors the YAML layout of a boot description file:
//
//	memory_map:
//	  - start: 0x100000
//	    pages: 16
//	    type: LoaderData
//	    runtime: false
//	kernel:
//	  phys: 0x200000
//	  virt: 0xffff800000000000
//	  size: 0x100000
//	framebuffer:
//	  base: 0x80000000
//	  size: 0x300000
type BootSpec struct {
	MemoryMap   []RegionSpec     `yaml:"memory_map"`
	Kernel      *KernelSpec      `yaml:"kernel"`
	Framebuffer *FramebufferSpec `yaml:"framebuffer"`
}

// RegionSpec is one firmware memory descriptor.
type RegionSpec struct {
	Start   uint64 `yaml:"start"`
	Pages   uint64 `yaml:"pages"`
	Type    string `yaml:"type"`
	Runtime bool   `yaml:"runtime"`
}

// KernelSpec is the kernel image placement.
type KernelSpec struct {
	Phys uint64 `yaml:"phys"`
	Virt uint64 `yaml:"virt"`
	Size uint64 `yaml:"size"`
}

// FramebufferSpec is the framebuffer region.
type FramebufferSpec struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// loadSpec reads and decodes a boot description file.
func loadSpec(path string) (*BootSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec BootSpec
	if err := yaml.UnmarshalStrict(data, &spec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &spec, nil
}

// buildMemoryMap converts the spec's regions to an efi.MemoryMap.
func (s *BootSpec) buildMemoryMap() (efi.MemoryMap, error) {
	mm := make(efi.MemoryMap, 0, len(s.MemoryMap))
	for i, r := range s.MemoryMap {
		typ, err := efi.ParseMemoryType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("memory_map[%d]: %w", i, err)
		}
		var attr efi.Attribute
		if r.Runtime {
			attr |= efi.MemoryRuntime
		}
		mm = append(mm, efi.MemoryDescriptor{
			Type:          typ,
			PhysicalStart: r.Start,
			NumberOfPages: r.Pages,
			Attribute:     attr,
		})
	}
	return mm, nil
}

// buildParams converts the whole spec to boot parameters.
func (s *BootSpec) buildParams() (boot.Params, error) {
	mm, err := s.buildMemoryMap()
	if err != nil {
		return boot.Params{}, err
	}
	p := boot.Params{MemoryMap: mm}
	if s.Kernel != nil {
		p.KernelPhys = uintptr(s.Kernel.Phys)
		p.KernelVirt = uintptr(s.Kernel.Virt)
		p.KernelSize = uintptr(s.Kernel.Size)
	}
	if s.Framebuffer != nil {
		p.Framebuffer = &boot.Framebuffer{
			Base: uintptr(s.Framebuffer.Base),
			Size: uintptr(s.Framebuffer.Size),
		}
	}
	return p, nil
}
