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
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct{}

// Name implements subcommands.Command.Name.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Dump) Synopsis() string {
	return "print a decoded memory map with the identity-mapping policy verdict per region"
}

// Usage implements subcommands.Command.Usage.
func (*Dump) Usage() string {
	return `dump <spec.yaml>

Prints every descriptor of the boot description's memory map together with
whether the bootstrap would keep it visible after paging is enabled.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Dump) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Dump) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	spec, err := loadSpec(f.Arg(0))
	if err != nil {
		fatalf("loading spec: %v", err)
	}
	mm, err := spec.buildMemoryMap()
	if err != nil {
		fatalf("building memory map: %v", err)
	}

	var mapped, total uint64
	for i := range mm {
		d := &mm[i]
		verdict := "skip"
		if boot.ShouldMap(d) {
			verdict = "map"
			mapped += d.NumberOfPages
		}
		total += d.NumberOfPages
		fmt.Printf("%-4s %v\n", verdict, d)
	}
	fmt.Printf("%d of %d pages stay visible after activation\n", mapped, total)
	return subcommands.ExitSuccess
}
