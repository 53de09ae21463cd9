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
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zintix-labs/flipvault"
	"github.com/zintix-labs/flipvault/config"
	"github.com/zintix-labs/flipvault/server"
	"github.com/zintix-labs/flipvault/server/auth"
	"github.com/zintix-labs/flipvault/server/logger"
	"github.com/zintix-labs/flipvault/server/netsvr"
	"github.com/zintix-labs/flipvault/server/svrcfg"
)

// flipvault server：載入設定、組裝 Node，啟動 HTTP API 與背景 workers。
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type flags struct {
	configFile string
	envFiles   []string
	addr       string
	dev        bool
	open       bool
}

func newRootCmd() *cobra.Command {
	f := new(flags)
	cmd := &cobra.Command{
		Use:           "flipvault-svr",
		Short:         "Run the coin flip vault HTTP server",
		Long:          "Run the coin flip vault HTTP server with a local VRF coordinator, the expiry reaper and the optional dev panel.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", "", "YAML config file (defaults to the embedded config)")
	fs.StringSliceVar(&f.envFiles, "env", nil, "dotenv files loaded before FLIPVAULT_* overrides")
	fs.StringVar(&f.addr, "addr", "", "listen address, overrides server.addr")
	fs.BoolVar(&f.dev, "dev", false, "register /dev routes, overrides server.dev_routes")
	fs.BoolVar(&f.open, "open", false, "open the dev panel in a browser once the server is up")
	return cmd
}

func run(cmd *cobra.Command, f *flags) error {
	cfg, err := config.Load(f.configFile, f.envFiles...)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if cmd.Flags().Changed("dev") {
		cfg.Server.DevRoutes = f.dev
	}

	log, closeLog, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	node, err := flipvault.NewNode(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := node.Close(); err != nil {
			log.Error("close node failed", "err", err)
		}
	}()

	sCfg := &svrcfg.SvrCfg{
		Log:    log,
		Vault:  node.Vault,
		Oracle: node.Oracle,
		Auth:   auth.NewVerifier(cfg.Server.SignatureWindow, nil),
		Net: netsvr.Options{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		DevRoutes: cfg.Server.DevRoutes,
	}
	if f.open && cfg.Server.DevRoutes {
		go openDevPanel(log, cfg.Server.Addr)
	}
	return server.Run(sCfg, node.Workers()...)
}

func buildLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	mode, err := logger.ParseMode(cfg.Log.Mode)
	if err != nil {
		return nil, nil, err
	}
	opt := logger.Options{Mode: mode, AsyncBuffer: cfg.Log.AsyncBuffer}
	if cfg.Log.File != "" {
		opt.File = &logger.FileSink{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	log, closeLog := logger.Build(opt)
	return log, closeLog, nil
}
