// Package cmd wires the command line to the conversion pipeline:
// argument parsing, input globbing, logging setup and progress
// rendering all live here, outside the pipeline itself.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/boozook/comic-repack/pkg/archive"
	"github.com/boozook/comic-repack/pkg/paths"
	"github.com/boozook/comic-repack/pkg/pipeline"
	"github.com/boozook/comic-repack/pkg/transcode"
)

var flags struct {
	format     string
	quality    int
	lossless   bool
	speed      int
	container  string
	jobs       int
	jobsFS     int
	retries    int
	maxDim     int
	force      bool
	skipErrors bool
	keep       bool
	output     string
	verbose    int
}

var rootCmd = &cobra.Command{
	Use:   "comic-repack [flags] FILES...",
	Short: "Repack comic-book archives into another container and image codec",
	Long: `Convert cbz/cbr/cb7 comic archives into cbz or EPUB, re-encoding
every page into a modern image codec (webp, avif) while preserving
reading order. Inputs may be paths or glob patterns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(flags.verbose)
		return run(cmd.Context(), args)
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.format, "format", "f", "webp", "target image codec: webp, avif, jpeg, png")
	f.IntVarP(&flags.quality, "quality", "q", 80, "encoding quality, 1-100")
	f.BoolVarP(&flags.lossless, "lossless", "l", false, "lossless encoding (webp only)")
	f.IntVarP(&flags.speed, "speed", "s", 3, "encoder speed for avif, 1-10")
	f.StringVarP(&flags.container, "archive", "a", "cbz", "target container: cbz, zip, epub")
	f.IntVarP(&flags.jobs, "jobs", "j", 0, "pages transcoded in parallel per archive (0 = logical cores)")
	f.IntVarP(&flags.jobsFS, "jobs-fs", "p", 1, "archives converted in parallel")
	f.IntVar(&flags.retries, "retries", 2, "retries for transient read errors during extraction")
	f.IntVar(&flags.maxDim, "max-dim", 0, "scale pages down so no dimension exceeds this (0 = keep size)")
	f.BoolVar(&flags.force, "force", false, "overwrite existing output files")
	f.BoolVar(&flags.skipErrors, "skip-errors", false, "skip undecodable pages instead of aborting")
	f.BoolVar(&flags.keep, "keep", false, "pass non-image entries through to the output")
	f.StringVarP(&flags.output, "output", "o", "", "output directory (default: current directory)")
	f.CountVarP(&flags.verbose, "verbose", "v", "increase log verbosity")
}

// Execute runs the root command with signal-driven cancellation.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging(verbose int) {
	level := slog.LevelWarn
	switch {
	case verbose == 1:
		level = slog.LevelInfo
	case verbose >= 2:
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run(ctx context.Context, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	files, err := paths.Resolve(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files")
	}

	outdir := flags.output
	if outdir == "" {
		if outdir, err = os.Getwd(); err != nil {
			return err
		}
	} else if err := os.MkdirAll(outdir, 0755); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flags.jobsFS)
	for _, file := range files {
		g.Go(func() error {
			return convert(gctx, file, outdir, opts)
		})
	}
	return g.Wait()
}

func buildOptions() (pipeline.Options, error) {
	codec, err := transcode.ParseCodec(flags.format)
	if err != nil {
		return pipeline.Options{}, err
	}

	var container archive.Container
	switch flags.container {
	case "cbz", "zip":
		container = archive.ContainerZip
	case "epub":
		container = archive.ContainerEpub
	default:
		return pipeline.Options{}, fmt.Errorf("unsupported target container: %s", flags.container)
	}

	return pipeline.Options{
		Container: container,
		Transcode: transcode.Options{
			Codec:    codec,
			Quality:  flags.quality,
			Lossless: flags.lossless,
			Speed:    flags.speed,
			MaxDim:   flags.maxDim,
		},
		Jobs:          flags.jobs,
		Retries:       flags.retries,
		SkipErrors:    flags.skipErrors,
		KeepNonImages: flags.keep,
		Overwrite:     flags.force,
	}, nil
}

func convert(ctx context.Context, src, outdir string, opts pipeline.Options) error {
	dst := paths.Output(src, outdir, opts.Container.Ext())
	opts.Title = trimExt(filepath.Base(src))

	p := pipeline.New(opts)
	done := make(chan struct{})
	go renderProgress(src, p.Progress(), done)

	sum, err := p.Run(ctx, src, dst)
	<-done
	if err != nil {
		slog.Error("conversion failed", "source", src, "err", err)
		return fmt.Errorf("%s: %w", src, err)
	}

	fmt.Fprintf(os.Stderr, "%s -> %s: %d pages", src, dst, sum.Committed)
	if sum.Skipped > 0 {
		fmt.Fprintf(os.Stderr, ", %d skipped", sum.Skipped)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// renderProgress drives one progress bar from the pipeline's snapshot
// stream until it closes.
func renderProgress(name string, snapshots <-chan pipeline.Snapshot, done chan<- struct{}) {
	defer close(done)
	var bar *progressbar.ProgressBar
	for s := range snapshots {
		if bar == nil {
			bar = progressbar.NewOptions(s.Total,
				progressbar.OptionSetDescription(filepath.Base(name)),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
		}
		bar.Set(s.Completed + s.Skipped + s.Failed)
	}
	if bar != nil {
		bar.Finish()
		bar.Clear()
	}
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
