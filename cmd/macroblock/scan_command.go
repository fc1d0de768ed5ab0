package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"macroblock/internal/api"
	"macroblock/internal/config"
	"macroblock/internal/gateway"
	"macroblock/internal/history"
	"macroblock/internal/logging"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput bool
		localOnly  bool
	)
	cmd := &cobra.Command{
		Use:   "scan <file>...",
		Short: "Analyze media files for manipulation",
		Long: "Analyze one or more image, video, or audio files for signs of manipulation.\n" +
			"Files are uploaded to the running daemon; pass --local (or stop the daemon)\n" +
			"to analyze in-process instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := resolveScanPaths(args)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var entries []api.BatchEntry
			if !localOnly && ctx.daemonAvailable(cmd.Context()) {
				entries, err = scanRemote(cmd.Context(), ctx, cfg.Analysis.BatchLimit, paths)
			} else {
				entries, err = scanLocal(cmd.Context(), cfg, paths)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, api.BatchResponse{Results: entries})
			}
			renderScanResults(cmd, entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit results as JSON")
	cmd.Flags().BoolVar(&localOnly, "local", false, "Analyze in-process without the daemon")
	return cmd
}

func resolveScanPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		absPath, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve path: %w", err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("file does not exist: %s", absPath)
			}
			return nil, fmt.Errorf("inspect file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", absPath)
		}
		paths = append(paths, absPath)
	}
	return paths, nil
}

// scanRemote ships the files to the daemon in batches no larger than the
// configured batch limit. Unreadable files fail individually without
// aborting the rest.
func scanRemote(ctx context.Context, cctx *commandContext, batchLimit int, paths []string) ([]api.BatchEntry, error) {
	if batchLimit <= 0 {
		batchLimit = 10
	}
	var entries []api.BatchEntry
	err := cctx.withClient(ctx, func(client *api.Client) error {
		for start := 0; start < len(paths); start += batchLimit {
			end := min(start+batchLimit, len(paths))
			uploads := make([]gateway.Upload, 0, end-start)
			for _, path := range paths[start:end] {
				data, err := os.ReadFile(path)
				if err != nil {
					entries = append(entries, api.BatchEntry{
						Filename: filepath.Base(path),
						Error:    fmt.Sprintf("read file: %v", err),
					})
					continue
				}
				uploads = append(uploads, gateway.Upload{Filename: filepath.Base(path), Data: data})
			}
			if len(uploads) == 0 {
				continue
			}
			resp, err := client.DetectBatch(ctx, uploads)
			if err != nil {
				return err
			}
			if resp != nil {
				entries = append(entries, resp.Results...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// scanLocal runs the analysis engine in-process: build the registry from the
// configuration, load detectors, analyze each file, and tear down.
func scanLocal(ctx context.Context, cfg *config.Config, paths []string) ([]api.BatchEntry, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			logger.Warn("history store unavailable", logging.Error(err))
			store = nil
		} else {
			defer store.Close()
		}
	}

	registry, err := gateway.BuildRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build detector registry: %w", err)
	}
	registry.LoadAll(ctx)
	defer func() {
		unloadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		registry.UnloadAll(unloadCtx)
		cancel()
	}()

	engine := gateway.New(cfg, registry, store, logger)

	entries := make([]api.BatchEntry, 0, len(paths))
	for _, path := range paths {
		result, err := engine.AnalyzePath(ctx, path)
		entry := api.BatchEntry{Filename: filepath.Base(path)}
		if err != nil {
			entry.Error = err.Error()
		} else {
			report := api.FromResult(result)
			entry.Report = &report
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func renderScanResults(cmd *cobra.Command, entries []api.BatchEntry) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	rows := make([][]string, 0, len(entries))
	analyzed, flagged, failed := 0, 0, 0
	for _, entry := range entries {
		if entry.Error != "" || entry.Report == nil {
			failed++
			message := entry.Error
			if message == "" {
				message = "no result"
			}
			rows = append(rows, []string{entry.Filename, "-", "ERROR", "-", message})
			continue
		}

		summary := api.SummarizeVerdict(entry.Report.Verdict)
		if summary.Error != "" {
			failed++
			rows = append(rows, []string{entry.Filename, displayKind(entry.Report.MediaKind), "ERROR", "-", summary.Error})
			continue
		}

		analyzed++
		verdict := "REAL"
		if summary.IsFake {
			flagged++
			verdict = "FAKE"
		}
		method := summary.Method
		if entry.Report.Cached {
			method += " (cached)"
		}
		rows = append(rows, []string{
			entry.Filename,
			displayKind(entry.Report.MediaKind),
			verdict,
			fmt.Sprintf("%.1f%%", summary.Confidence*100),
			method,
		})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"File", "Kind", "Verdict", "Confidence", "Method"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))

	kind := statusOK
	switch {
	case failed == len(entries) && len(entries) > 0:
		kind = statusError
	case failed > 0 || flagged > 0:
		kind = statusWarn
	}
	message := fmt.Sprintf("%d analyzed, %d flagged fake", analyzed, flagged)
	if failed > 0 {
		message += fmt.Sprintf(", %d failed", failed)
	}
	fmt.Fprintln(out, renderStatusLine("Scan", kind, message, colorize))
}
