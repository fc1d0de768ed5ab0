package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"macroblock/internal/api"
	"macroblock/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show recorded analyses",
		Long: "List recent analyses, or show one analysis in detail by its identifier.\n" +
			"Reads through the daemon when it is running, directly from the history\n" +
			"database otherwise.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryItem(cmd, ctx, strings.TrimSpace(args[0]), jsonOutput)
			}
			return runHistoryList(cmd, ctx, limit, jsonOutput)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of analyses to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit history as JSON")
	return cmd
}

func runHistoryList(cmd *cobra.Command, cctx *commandContext, limit int, jsonOutput bool) error {
	var entries []api.HistoryEntry
	if cctx.daemonAvailable(cmd.Context()) {
		err := cctx.withClient(cmd.Context(), func(client *api.Client) error {
			resp, err := client.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if resp != nil {
				entries = resp.Entries
			}
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		var err error
		entries, err = offlineHistoryEntries(cmd.Context(), cctx, limit)
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		return writeJSON(cmd, api.HistoryResponse{Entries: entries})
	}

	stdout := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No analyses recorded")
		return nil
	}

	rows := buildHistoryRows(api.SortEntriesNewestFirst(entries))
	fmt.Fprintln(stdout, renderTable(
		[]string{"ID", "File", "Kind", "Verdict", "Confidence", "When"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func runHistoryItem(cmd *cobra.Command, cctx *commandContext, id string, jsonOutput bool) error {
	if id == "" {
		return errors.New("analysis id is empty")
	}

	var entry *api.HistoryEntry
	if cctx.daemonAvailable(cmd.Context()) {
		err := cctx.withClient(cmd.Context(), func(client *api.Client) error {
			item, err := client.HistoryItem(cmd.Context(), id)
			if err != nil {
				var statusErr *api.StatusError
				if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
					return fmt.Errorf("analysis %s not found", id)
				}
				return err
			}
			entry = item
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		item, err := offlineHistoryItem(cmd.Context(), cctx, id)
		if err != nil {
			return err
		}
		entry = item
	}

	if jsonOutput {
		return writeJSON(cmd, entry)
	}
	renderHistoryDetail(cmd, entry)
	return nil
}

func offlineHistoryEntries(ctx context.Context, cctx *commandContext, limit int) ([]api.HistoryEntry, error) {
	store, err := openHistoryStore(cctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	records, err := store.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return api.FromHistoryRecords(records), nil
}

func offlineHistoryItem(ctx context.Context, cctx *commandContext, id string) (*api.HistoryEntry, error) {
	store, err := openHistoryStore(cctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rec, err := store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("analysis %s not found", id)
	}
	entry := api.FromHistoryRecord(rec)
	return &entry, nil
}

func openHistoryStore(cctx *commandContext) (*history.Store, error) {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, errors.New("history is disabled in the configuration")
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

func renderHistoryDetail(cmd *cobra.Command, entry *api.HistoryEntry) {
	if entry == nil {
		return
	}
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Analysis "+shortID(entry.AnalysisID), colorize) {
		fmt.Fprintln(stdout, line)
	}

	verdict := "REAL"
	verdictKind := statusOK
	if entry.IsFake {
		verdict = "FAKE"
		verdictKind = statusWarn
	}
	fmt.Fprintln(stdout, renderStatusLine("Verdict", verdictKind,
		fmt.Sprintf("%s (%.1f%% confidence)", verdict, entry.Confidence*100), colorize))
	fmt.Fprintln(stdout, renderStatusLine("File", statusInfo, entry.Filename, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Kind", statusInfo, displayKind(entry.MediaKind), colorize))
	if entry.SizeBytes > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Size", statusInfo, humanize.Bytes(uint64(entry.SizeBytes)), colorize))
	}
	if entry.SHA256 != "" {
		fmt.Fprintln(stdout, renderStatusLine("SHA-256", statusInfo, entry.SHA256, colorize))
	}
	if entry.Method != "" {
		method := entry.Method
		if entry.FramesAnalyzed > 0 {
			method = fmt.Sprintf("%s (%d frames)", method, entry.FramesAnalyzed)
		}
		fmt.Fprintln(stdout, renderStatusLine("Method", statusInfo, method, colorize))
	}
	if when := api.ParseReportTime(entry.CreatedAt); !when.IsZero() {
		fmt.Fprintln(stdout, renderStatusLine("Analyzed", statusInfo,
			fmt.Sprintf("%s (%s)", formatDisplayTime(entry.CreatedAt), humanize.Time(when)), colorize))
	}
	if entry.ElapsedMS > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Elapsed", statusInfo, fmt.Sprintf("%.0f ms", entry.ElapsedMS), colorize))
	}

	if rows := buildModelScoreRows(entry.ModelScores); len(rows) > 0 {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Model Scores", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, renderTable(
			[]string{"Model", "Score", "Error"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft},
		))
	}
}
