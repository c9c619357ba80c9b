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

//go:build amd64

package ring0

// writeCR3 loads a new page-table root, flushing the TLB.
//
// The hierarchy at value must already map the executing code and the stack,
// or the next instruction fetch faults with no handler installed.
func writeCR3(value uint64)

// readCR3 returns the current page-table root.
func readCR3() uint64

// halt stops the processor and never returns.
func halt()

// Platform drives the real CPU. It satisfies boot.Platform.
type Platform struct{}

// SetPageTables implements boot.Platform.SetPageTables.
func (Platform) SetPageTables(cr3 uint64) {
	writeCR3(cr3)
}

// Halt implements boot.Platform.Halt.
func (Platform) Halt() {
	halt()
}

// CurrentPageTables returns the live CR3 value, for diagnostics.
func CurrentPageTables() uint64 {
	return readCR3()
}
