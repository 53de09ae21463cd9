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
	"os"
	"sort"
)

// 用法：go run ./scripts [task]
func main() {
	exeCmd()
}

func exeCmd() {
	// 如果沒有送任何參數進來，我們告訴用戶需要帶上 task
	if len(os.Args) < 2 {
		warnf("Usage: go run ./scripts [task]")
		printTasks()
		os.Exit(1)
	}

	task := os.Args[1] // 取第一個參數 (os.Args[0] 是執行檔本身)
	selectTask(task)   // 路由執行
}

func selectTask(task string) {
	t, ok := tasks[task]
	if !ok {
		warnf("Unknown task: %s", task)
		printTasks()
		os.Exit(1)
	}
	okf("%s", t.desc)
	if err := t.run(); err != nil {
		failf("\n%s finished with errors: %v\n", task, err)
		os.Exit(1) // 告訴 Makefile 失敗了
	}
}

func printTasks() {
	names := make([]string, 0, len(tasks))
	for n := range tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		plainf("  %-12s %s", n, tasks[n].desc)
	}
}
