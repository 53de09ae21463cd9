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
	"fmt"
	"os"
)

// ansiColor 是終端顏色碼（Windows 10+ 的 cmd/powershell 亦支援）。
type ansiColor string

const (
	colorGreen  ansiColor = "\033[32m"
	colorYellow ansiColor = "\033[33m"
	colorRed    ansiColor = "\033[31m"
	colorNone   ansiColor = ""
	colorReset            = "\033[0m"
)

// useColor：設定 NO_COLOR 或輸出不是終端機（例如 CI 的 log 檔）時不上色。
var useColor = func() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}()

func say(c ansiColor, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !useColor || c == colorNone {
		fmt.Println(msg)
		return
	}
	fmt.Printf("%s%s%s\n", c, msg, colorReset)
}

func plainf(format string, args ...any) { say(colorNone, format, args...) }
func okf(format string, args ...any)    { say(colorGreen, format, args...) }
func warnf(format string, args ...any)  { say(colorYellow, format, args...) }
func failf(format string, args ...any)  { say(colorRed, format, args...) }
