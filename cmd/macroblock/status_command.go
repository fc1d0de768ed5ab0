package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"macroblock/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show system status and detector readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, ctx, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

// runStatus backs both `status` and `daemon status`: one snapshot, one
// renderer.
func runStatus(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.apiClient(), cfg)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd, status)
	}

	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range status.SystemChecks {
		fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range dependencyLines(status.Dependencies, status.DependencySummary, colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Directories", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range status.DirectoryChecks {
		fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Detectors", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := buildDetectorRows(status.Detectors.Detectors)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No detectors registered")
	} else {
		fmt.Fprintln(stdout, renderTable(
			[]string{"Name", "Modality", "Loaded", "Device", "Error"},
			rows,
			nil,
		))
	}

	if status.History != nil {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("History", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, renderStatusLine("Analyses", statusOK,
			fmt.Sprintf("%d recorded, %d flagged fake", status.History.Total, status.History.Fakes), colorize))
		if len(status.History.ByKind) > 0 {
			kinds := make([]string, 0, len(status.History.ByKind))
			for kind := range status.History.ByKind {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			parts := make([]string, 0, len(kinds))
			for _, kind := range kinds {
				parts = append(parts, fmt.Sprintf("%s %d", kind, status.History.ByKind[kind]))
			}
			fmt.Fprintln(stdout, renderStatusLine("By kind", statusInfo, strings.Join(parts, ", "), colorize))
		}
	}
	return nil
}
