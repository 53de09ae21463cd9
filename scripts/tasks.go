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

package main

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
)

type task struct {
	desc string
	run  func() error
}

var tasks = map[string]task{
	"test":        {"running tests", runTest},
	"test-all":    {"running tests (all with coverage)", runTestAll},
	"test-detail": {"running tests (detail)", runTestDetail},
	"sim":         {"running a seeded simulation smoke test", runSimSmoke},
	"dev":         {"starting the dev server on a memory store", runDevServer},
}

// runTest 對應 Makefile:
//
//	go clean -testcache && go test ./... -cover -count=1 | grep -E '^(ok|FAIL)'
func runTest() error {
	if err := cleanTestCache(); err != nil {
		failf("%v", err) // clean 失敗不一定要中斷
	}
	return streamLines(exec.Command("go", "test", "./...", "-cover", "-count=1"), func(line string) {
		switch {
		case strings.HasPrefix(line, "ok"):
			okf("%s", line)
		case strings.HasPrefix(line, "FAIL"):
			failf("%s", line)
		case strings.Contains(line, "build failed") || strings.Contains(line, "setup failed"):
			// 捕捉嚴重錯誤關鍵字，不然過濾太乾淨會看不出為什麼沒反應
			failf("%s", line)
		}
	})
}

// runTestAll 對應 Makefile:
//
//	go clean -testcache && go test -cover ./...
func runTestAll() error {
	if err := cleanTestCache(); err != nil {
		return err
	}
	return passthrough(exec.Command("go", "test", "./...", "-cover"))
}

// runTestDetail 顯示所有 log，但過濾掉 "[no test files]" 那些行
func runTestDetail() error {
	if err := cleanTestCache(); err != nil {
		return err
	}
	return streamLines(exec.Command("go", "test", "./...", "-v", "-count=1"), func(line string) {
		switch {
		case strings.Contains(line, "[no test files]"):
		case strings.HasPrefix(line, "ok"):
			okf("%s", line)
		case strings.HasPrefix(line, "FAIL"):
			failf("%s", line)
		default:
			plainf("%s", line)
		}
	})
}

// runSimSmoke 跑一次固定種子的小模擬，帳本沒對平就失敗。
func runSimSmoke() error {
	cmd := exec.Command("go", "run", "./cmd/sim",
		"--bettors", "200", "--flips", "200", "--batch", "4", "--seed", "20251", "--quiet", "--format", "json")
	var balanced bool
	err := streamLines(cmd, func(line string) {
		if strings.Contains(line, `"Balanced":true`) {
			balanced = true
		}
	})
	if err != nil {
		return err
	}
	if !balanced {
		return errUnbalanced
	}
	okf("ledger balanced")
	return nil
}

// runDevServer 以記憶體 store 啟動 server 並打開 Dev Panel。
func runDevServer() error {
	cmd := exec.Command("go", "run", "./cmd/svr", "--dev", "--open")
	cmd.Env = append(os.Environ(), "FLIPVAULT_STORE_BACKEND=memory")
	return passthrough(cmd)
}

type scriptErr string

func (e scriptErr) Error() string { return string(e) }

const errUnbalanced = scriptErr("simulation ledger not balanced")

func cleanTestCache() error {
	return passthrough(exec.Command("go", "clean", "-testcache"))
}

func passthrough(cmd *exec.Cmd) error {
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// streamLines 合併 stdout/stderr（模擬 "2>&1"）並逐行交給 fn。
func streamLines(cmd *exec.Cmd, fn func(string)) error {
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		failf("%v", err)
	}
	return cmd.Wait()
}
