// Copyright 2025 Zintix Labs
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

// Package perf 把一段執行包上 pprof，輸出到指定目錄（預設 build/profiling）。
package perf

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"github.com/zintix-labs/flipvault/errs"
)

// DefaultDir 是 pprof 檔案預設寫入路徑
const DefaultDir = "build/profiling"

// Modes 列出支援的 profiling 模式；空字串代表不開 profiling。
var Modes = []string{"", "cpu", "heap", "allocs"}

// Run 根據 mode 決定執行哪種 Profiling，exe 的錯誤原樣回傳。
func Run(exe func() error, mode string, dir string) error {
	if mode == "" {
		return exe()
	}
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.WrapWithExtra(err, "create profiling dir failed", dir)
	}
	switch mode {
	case "cpu":
		return CPU(exe, dir)
	case "heap":
		return snapshot(exe, dir, "heap")
	case "allocs":
		return snapshot(exe, dir, "allocs")
	}
	return errs.Fatalf("unknown pprof mode %q", mode)
}

// CPU 在 exe 執行期間開啟 CPU profiling。
//
// 可以作性能分析，也可以拿來做構建時給pgo的優化blueprint
//
// Usage like:
//
//	go run ./cmd/sim --pprof cpu
func CPU(exe func() error, dir string) error {
	path := filepath.Join(dir, "cpu.pprof")
	f, err := os.Create(path)
	if err != nil {
		return errs.WrapWithExtra(err, "create cpu profile failed", path)
	}
	defer f.Close()
	if err := pprof.StartCPUProfile(f); err != nil {
		return errs.Wrap(err, "start cpu profile failed")
	}
	defer pprof.StopCPUProfile()
	return exe()
}

// snapshot 會在 exe() 執行完後寫出一次 heap 或 allocs profile。
// heap 是 in-use memory；allocs 是累積配置，需要搭配 -alloc_space / -alloc_objects 查看。
// 寫出前先 runtime.GC()，讓 live objects 視圖貼近最新狀態。
func snapshot(exe func() error, dir string, name string) error {
	if err := exe(); err != nil {
		return err
	}
	runtime.GC()

	path := filepath.Join(dir, name+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return errs.WrapWithExtra(err, "create "+name+" profile failed", path)
	}
	defer f.Close()

	prof := pprof.Lookup(name)
	if prof == nil {
		return errs.Fatalf("profile %q not found", name)
	}
	if err := prof.WriteTo(f, 0); err != nil {
		return errs.Wrap(err, "write "+name+" profile failed")
	}
	return nil
}
