package main

import (
	"bytemomo/harpoon/internal/nuclei"

	"github.com/spf13/cobra"
)

func newNucleiCmd(a *app) *cobra.Command {
	var (
		target string
		opts   nuclei.Options
	)

	cmd := &cobra.Command{
		Use:   "nuclei",
		Short: "Template based web scanning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scan, err := a.nuclei.Scan(cmd.Context(), target, opts)
			if scan != nil {
				if pErr := printJSON(cmd, scan); pErr != nil {
					return pErr
				}
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&target, "target", "t", "", "URL to scan")
	flags.StringVar(&opts.Templates, "templates", "", "Template path or directory")
	flags.StringVar(&opts.Severity, "severity", "", "Comma separated severities")
	flags.StringVar(&opts.Tags, "tags", "", "Comma separated template tags")
	flags.IntVar(&opts.RateLimit, "rate-limit", 0, "Maximum requests per second")
	flags.IntVar(&opts.Timeout, "timeout", 0, "Per request timeout in seconds")
	flags.IntVar(&opts.Retries, "retries", 0, "Retries per request")
	cmd.MarkFlagRequired("target")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "reports",
			Short: "List nuclei reports",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := a.nuclei.Reports()
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			},
		},
		&cobra.Command{
			Use:   "report NAME",
			Short: "Show the findings of one nuclei report",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := a.nuclei.Report(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			},
		},
	)
	return cmd
}
