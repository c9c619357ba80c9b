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

// bootmap inspects and simulates the jtos virtual-memory bootstrap from a
// boot description file, without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/wxuefei/jtos/pkg/log"
)

var debug = flag.Bool("debug", false, "enable debug logging")

// fatalf prints an error and exits. Tool-level failures only; the library
// layers never reach it.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "bootmap: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Simulate), "")
	subcommands.Register(new(Dump), "")
	subcommands.Register(new(Decode), "")

	flag.Parse()
	if *debug {
		log.SetLevel(log.Debug)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
