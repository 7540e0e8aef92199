// Package cmd implements the verify-links command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jestress/verifylinks/internal/config"
	"github.com/jestress/verifylinks/internal/logger"
	"github.com/jestress/verifylinks/internal/metrics"
	"github.com/jestress/verifylinks/internal/report"
	"github.com/jestress/verifylinks/internal/verifier"
)

// ErrBrokenLinks is returned when more links are broken than allowed.
var ErrBrokenLinks = errors.New("broken links found")

// Exit codes.
const (
	ExitOK     = 0
	ExitBroken = 1
	ExitFatal  = 2
)

// ExitCode maps the error returned by the root command to a process exit
// code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrBrokenLinks):
		return ExitBroken
	default:
		return ExitFatal
	}
}

// NewRootCmd creates the verify-links command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "verify-links [build_dir]",
		Short: "Check every internal and external link in a built static site",
		Long: `verify-links walks a static site build directory (default "build"),
resolves every internal link against the files on disk, checks external
links over HTTP and exits non-zero when broken links are found.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runVerify,
	}
	config.RegisterFlags(root.Flags())
	return root
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.New(), cmd.Flags(), args)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logger(), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	defer func() { _ = log.Sync() }()

	var m *metrics.Metrics
	if cfg.MetricsOutput != "" {
		m = metrics.New()
	}

	v := verifier.New(verifier.Options{
		BuildDir:      cfg.BuildDir,
		BasePath:      cfg.BasePath,
		InternalHosts: cfg.InternalHosts,
		Exclude:       cfg.Exclude,
		CheckAnchors:  !cfg.NoAnchorCheck,
		SkipExternal:  cfg.SkipExternal,
		MaxDuration:   cfg.Deadline(),
		Checker:       cfg.Checker(),
	}, log, verifier.WithMetrics(m))

	r, err := v.Run(cmd.Context())
	if err != nil {
		log.Error("Run failed", logger.Error(err))
		return err
	}

	out := cmd.OutOrStdout()
	console := report.NewConsole(out, report.ConsoleOptions{
		Color:     colorFor(out, cfg.NoColor),
		ShowAll:   cfg.ShowAll,
		MaxBroken: cfg.MaxBroken,
	})
	if err := console.Render(r); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := writeOutputs(cfg, r, m, log); err != nil {
		return err
	}

	if r.Failed(cfg.MaxBroken) {
		return fmt.Errorf("%w: %d broken, %d allowed", ErrBrokenLinks, r.BrokenCount(), cfg.MaxBroken)
	}
	return nil
}

func writeOutputs(cfg *config.Config, r *report.RunReport, m *metrics.Metrics, log logger.Logger) error {
	outputs := []struct {
		path  string
		write func() error
	}{
		{cfg.JSONOutput, func() error { return report.WriteJSON(cfg.JSONOutput, r) }},
		{cfg.CSVOutput, func() error { return report.WriteCSV(cfg.CSVOutput, r) }},
		{cfg.XLSXOutput, func() error { return report.WriteXLSX(cfg.XLSXOutput, r) }},
		{cfg.MetricsOutput, func() error { return m.WriteTextfile(cfg.MetricsOutput) }},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := o.write(); err != nil {
			return err
		}
		log.Info("Wrote output", logger.String("path", o.path))
	}
	return nil
}

func colorFor(w io.Writer, noColor bool) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return report.ColorEnabled(f, noColor)
}
