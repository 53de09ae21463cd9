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
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zintix-labs/flipvault"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/perf"
	"github.com/zintix-labs/flipvault/stats"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type simFlags struct {
	bettors  int
	flips    int
	batch    int
	workers  int
	stake    string
	balance  string
	bankroll string
	seed     int64
	format   string
	out      string
	quiet    bool
	pprof    string
}

func newRootCmd() *cobra.Command {
	f := new(simFlags)
	cmd := &cobra.Command{
		Use:           "flipvault-sim",
		Short:         "Simulate bettors against an in-memory coin flip vault",
		Long:          "Simulate bettors against an in-memory coin flip vault and report win rate, house edge, streaks and the final ledger reconciliation.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return perf.Run(func() error { return run(cmd.Context(), f) }, f.pprof, perf.DefaultDir)
		},
	}
	bindFlags(cmd.Flags(), f)
	return cmd
}

func bindFlags(fs *pflag.FlagSet, f *simFlags) {
	fs.IntVarP(&f.bettors, "bettors", "n", 100, "number of bettors")
	fs.IntVarP(&f.flips, "flips", "f", 1000, "max flips per bettor")
	fs.IntVar(&f.batch, "batch", 1, "pending flips per bettor before fulfilling")
	fs.IntVarP(&f.workers, "workers", "w", 1, "concurrent bettors (results are reproducible only with 1)")
	fs.StringVar(&f.stake, "stake", "0.01eth", "stake per flip")
	fs.StringVar(&f.balance, "balance", "1eth", "initial balance per bettor")
	fs.StringVar(&f.bankroll, "bankroll", "1000eth", "treasury deposited by the principal")
	fs.Int64Var(&f.seed, "seed", 0, "seed, 0 picks a random one")
	fs.StringVarP(&f.format, "format", "o", "table", "report format: table|json|yaml")
	fs.StringVar(&f.out, "out", "", "write the report to a file instead of stdout")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "hide the progress bar")
	fs.StringVar(&f.pprof, "pprof", "", "pprof: '', cpu, heap, allocs")
}

func run(ctx context.Context, f *simFlags) error {
	rep, est, ok := stats.RenderByName(f.format)
	if !ok {
		return errs.Fatalf("unknown format %q", f.format)
	}
	cfg, err := f.simConfig()
	if err != nil {
		return err
	}
	s, err := flipvault.NewSimulator(cfg)
	if err != nil {
		return err
	}

	green := "\033[1;32m"
	reset := "\033[0m"
	p := message.NewPrinter(language.English)
	if !f.quiet {
		p.Fprintf(os.Stderr, "%s[SEED:%d] [WORKERS:%d] [BETTORS:%d BALANCE:%s STAKE:%s FLIPS:%d BATCH:%d]%s\n",
			green, s.Seed(), cfg.Workers, cfg.Bettors, f.balance, f.stake, cfg.Flips, cfg.Batch, reset)
	}
	res, err := s.Run(ctx)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return errs.WrapWithExtra(err, "create report file failed", f.out)
		}
		defer file.Close()
		w = file
	}
	if f.format == "table" && f.out == "" {
		res.Report.StdOut(res.Used)
		res.Estimator.Out()
		return nil
	}
	if err := res.Report.WriteWith(w, rep); err != nil {
		return err
	}
	return est.Write(w, res.Estimator)
}

func (f *simFlags) simConfig() (flipvault.SimConfig, error) {
	stake, err := money.ParseAmount(f.stake)
	if err != nil {
		return flipvault.SimConfig{}, errs.WrapWithExtra(err, "invalid --stake", f.stake)
	}
	balance, err := money.ParseAmount(f.balance)
	if err != nil {
		return flipvault.SimConfig{}, errs.WrapWithExtra(err, "invalid --balance", f.balance)
	}
	bankroll, err := money.ParseAmount(f.bankroll)
	if err != nil {
		return flipvault.SimConfig{}, errs.WrapWithExtra(err, "invalid --bankroll", f.bankroll)
	}
	return flipvault.SimConfig{
		Bettors:     f.bettors,
		Flips:       f.flips,
		Batch:       f.batch,
		Workers:     f.workers,
		Stake:       stake,
		InitBalance: balance,
		Bankroll:    bankroll,
		Seed:        f.seed,
		ShowBar:     !f.quiet,
	}, nil
}
