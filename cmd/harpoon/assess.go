package main

import (
	"bytemomo/harpoon/internal/usecase"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newAssessCmd(a *app) *cobra.Command {
	var (
		o   targetOptions
		cfg usecase.Config
	)

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Discover, scan and plan exploits for a whole target range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := usecase.NewOrchestrator(a.scanner, a.nuclei, a.mapper, a.reports, cfg, log.NewEntry(a.log))
			res, err := orch.Execute(cmd.Context(), o.target())
			if res != nil {
				if pErr := printJSON(cmd, res); pErr != nil {
					return pErr
				}
			}
			return err
		},
	}
	o.bind(cmd, true)
	flags := cmd.Flags()
	flags.IntVar(&cfg.Concurrency, "concurrency", 4, "Hosts scanned in parallel")
	flags.BoolVar(&cfg.ContinueOnError, "continue-on-error", false, "Keep going when a host fails")
	flags.BoolVar(&cfg.SkipDiscovery, "skip-discovery", false, "Scan every listed host without a ping sweep")
	flags.BoolVar(&cfg.WebScan, "web", false, "Run nuclei against discovered HTTP services")
	flags.StringVar(&cfg.Nuclei.Severity, "web-severity", "", "Nuclei severity filter")
	return cmd
}
