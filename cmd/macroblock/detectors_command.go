package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"macroblock/internal/api"
	"macroblock/internal/gateway"
	"macroblock/internal/logging"
)

func newDetectorsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "detectors",
		Short: "List registered detectors and their load state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				resp    *api.DetectorsResponse
				offline bool
			)
			if ctx.daemonAvailable(cmd.Context()) {
				err := ctx.withClient(cmd.Context(), func(client *api.Client) error {
					r, err := client.Detectors(cmd.Context())
					if err != nil {
						return err
					}
					resp = r
					return nil
				})
				if err != nil {
					return err
				}
			} else {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				registry, err := gateway.BuildRegistry(cfg, logging.NewNop())
				if err != nil {
					return err
				}
				listing := api.FromRegistryHealth(registry.Health())
				resp = &listing
				offline = true
			}

			if jsonOutput {
				return writeJSON(cmd, resp)
			}

			stdout := cmd.OutOrStdout()
			rows := buildDetectorRows(resp.Detectors)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No detectors registered")
				return nil
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Name", "Modality", "Loaded", "Device", "Error"},
				rows,
				nil,
			))

			loaded := 0
			for _, det := range resp.Detectors {
				if det.Loaded {
					loaded++
				}
			}
			kind := statusOK
			message := fmt.Sprintf("%d/%d loaded", loaded, resp.RegisteredCount)
			switch {
			case offline:
				kind = statusInfo
				message = fmt.Sprintf("%d registered (daemon not running)", resp.RegisteredCount)
			case loaded < resp.RegisteredCount:
				kind = statusWarn
			}
			fmt.Fprintln(stdout, renderStatusLine("Detectors", kind, message, shouldColorize(stdout)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit detector list as JSON")
	return cmd
}

func buildDetectorRows(detectors []api.DetectorStatus) [][]string {
	if len(detectors) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(detectors))
	for _, det := range detectors {
		device := det.Device
		if device == "" {
			device = "-"
		}
		errText := det.Error
		if errText == "" {
			errText = "-"
		}
		rows = append(rows, []string{det.Name, displayKind(det.Modality), yesNo(det.Loaded), device, errText})
	}
	return rows
}
