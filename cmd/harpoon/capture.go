package main

import (
	"bytemomo/harpoon/internal/artifact"

	"github.com/spf13/cobra"
)

func newCaptureCmd(a *app) *cobra.Command {
	var (
		iface  string
		count  int
		report bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture packets with tcpdump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.sniffer.Capture(cmd.Context(), iface, count)
			if err != nil {
				return err
			}
			out := map[string]any{"capture": path}
			if report {
				rendered, analysis, err := a.sniffer.Report(path)
				if err != nil {
					return err
				}
				out["report"] = rendered
				out["analysis"] = analysis
			}
			return printJSON(cmd, out)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&iface, "interface", "i", "eth0", "Interface to capture on")
	flags.IntVarP(&count, "count", "n", 100, "Number of packets")
	flags.BoolVar(&report, "report", false, "Analyze the capture and render a report")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "interfaces",
			Short: "List network interfaces",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ifs, err := a.sniffer.Interfaces()
				if err != nil {
					return err
				}
				return printJSON(cmd, ifs)
			},
		},
		&cobra.Command{
			Use:   "analyze NAME",
			Short: "Analyze a stored capture",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				analysis, err := a.sniffer.AnalyzeArtifact(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, analysis)
			},
		},
		&cobra.Command{
			Use:   "report NAME",
			Short: "Render a report for a stored capture",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.store.Resolve(artifact.Captures, args[0])
				if err != nil {
					return err
				}
				rendered, _, err := a.sniffer.Report(path)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"report": rendered})
			},
		},
	)
	return cmd
}
