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

package app

import (
	"context"
	"fmt"
)

// Component 是交給 App 管理的長生命週期元件（HTTP server、oracle 回填、逾時退款）。
//   - Run() 阻塞直到元件停止；Shutdown 後應回傳 nil（或 http.ErrServerClosed 這類停止訊號）。
//   - Shutdown(ctx) 要求停止並等待 Run 結束，須尊重 ctx deadline。
type Component interface {
	Run() error
	Shutdown(ctx context.Context) error
}

// Named 可選：元件提供名稱時，App 的日誌會帶上它。
type Named interface {
	Name() string
}

func nameOf(c Component) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}
