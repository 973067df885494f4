// Command histpack merges and compresses the history files of a CESM case.
//
// It loads flags, the environment and an optional config file, then either
// runs the tool diagnostics (--check) or the archive pipeline.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backmassage/histpack/internal/check"
	"github.com/backmassage/histpack/internal/config"
	"github.com/backmassage/histpack/internal/display"
	"github.com/backmassage/histpack/internal/fault"
	"github.com/backmassage/histpack/internal/logging"
	"github.com/backmassage/histpack/internal/pipeline"
	"github.com/backmassage/histpack/internal/term"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "0.3.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := fault.ExitOK
	cmd := newRootCmd(stdout, stderr, &code)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "histpack: %v\n", err)
		if code == fault.ExitOK {
			// Flag parse errors from cobra carry no kind.
			code = fault.ExitArgument
		}
	}
	return code
}

func newRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "histpack [flags] <source-case-dir> <output-dir>",
		Short: "Merge and compress CESM history files",
		Long: `histpack scans the history directories of a CESM case, merges daily and
monthly files into yearly (or monthly, or whole-run) files with NCO, compresses
them, verifies a sample against the inputs and optionally moves the inputs
aside.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	flags := config.BindFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := flags.Load(args)
		if err != nil {
			*code = fault.ExitCode(err)
			return err
		}
		term.Configure(cfg.ColorMode)
		display.PrintBanner(stdout)

		if cfg.CheckOnly {
			log, err := logging.NewLogger(logging.Options{Verbose: cfg.Verbose, Stdout: stdout, Stderr: stderr})
			if err != nil {
				return err
			}
			defer log.Close()
			if !check.RunCheck(cfg.Tools, log) {
				*code = fault.ExitTool
			}
			return nil
		}

		res := pipeline.Run(cmd.Context(), &cfg, pipeline.Options{Stdout: stdout, Stderr: stderr})
		*code = res.ExitCode
		return nil
	}
	return cmd
}
