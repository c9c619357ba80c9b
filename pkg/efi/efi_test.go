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

package efi

import "testing"

func TestDescriptorGeometry(t *testing.T) {
	d := MemoryDescriptor{Type: LoaderData, PhysicalStart: 0x100000, NumberOfPages: 16}
	if got, want := d.Size(), uint64(16*PageSize); got != want {
		t.Errorf("Size() = %#x, want %#x", got, want)
	}
	if got, want := d.PhysicalEnd(), uint64(0x110000); got != want {
		t.Errorf("PhysicalEnd() = %#x, want %#x", got, want)
	}
}

func TestIsRuntime(t *testing.T) {
	d := MemoryDescriptor{Type: MemoryMappedIO, Attribute: MemoryRuntime}
	if !d.IsRuntime() {
		t.Error("IsRuntime() = false with EFI_MEMORY_RUNTIME set")
	}
	d.Attribute = 0
	if d.IsRuntime() {
		t.Error("IsRuntime() = true with no attributes")
	}
}

func TestParseMemoryType(t *testing.T) {
	for _, typ := range []MemoryType{LoaderCode, LoaderData, ConventionalMemory, ReservedMemoryType} {
		got, err := ParseMemoryType(typ.String())
		if err != nil {
			t.Errorf("ParseMemoryType(%q): %v", typ.String(), err)
			continue
		}
		if got != typ {
			t.Errorf("ParseMemoryType(%q) = %v", typ.String(), got)
		}
	}
	if _, err := ParseMemoryType("NotAType"); err == nil {
		t.Error("ParseMemoryType of an unknown name did not fail")
	}
}
