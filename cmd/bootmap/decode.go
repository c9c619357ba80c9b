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
	"strconv"

	"github.com/google/subcommands"
	"github.com/wxuefei/jtos/pkg/hostarch"
	"github.com/wxuefei/jtos/pkg/pagetables"
)

// Decode implements subcommands.Command for the "decode" command.
type Decode struct {
	// pte switches from linear-address decomposition to decoding the
	// value as a raw page-table entry.
	pte bool
}

// Name implements subcommands.Command.Name.
func (*Decode) Name() string {
	return "decode"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Decode) Synopsis() string {
	return "decompose a linear address into table indices, or decode a raw page-table entry"
}

// Usage implements subcommands.Command.Usage.
func (*Decode) Usage() string {
	return `decode [-pte] <value>

Without -pte, treats the value as a linear address and prints the PML4,
PDPT, PD and PT indices plus the page offset. With -pte, treats it as a raw
64-bit entry and prints presence and the physical frame address.

OPTIONS:
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Decode) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&d.pte, "pte", false, "decode the value as a raw page-table entry")
}

// Execute implements subcommands.Command.Execute.
func (d *Decode) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	value, err := strconv.ParseUint(f.Arg(0), 0, 64)
	if err != nil {
		fatalf("parsing %q: %v", f.Arg(0), err)
	}

	if d.pte {
		pte := pagetables.PTE(value)
		if !pte.Valid() {
			fmt.Printf("%#016x: not present\n", value)
			return subcommands.ExitSuccess
		}
		fmt.Printf("%#016x: present, frame %#x\n", value, pte.Address())
		return subcommands.ExitSuccess
	}

	pml4, pdpt, pd, pt, offset := pagetables.Indices(hostarch.Addr(value))
	fmt.Printf("%#016x: pml4=%d pdpt=%d pd=%d pt=%d offset=%#x\n", value, pml4, pdpt, pd, pt, offset)
	return subcommands.ExitSuccess
}
