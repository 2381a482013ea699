package main

import (
	"context"
	"fmt"
	"time"

	"bytemomo/harpoon/internal/domain"

	"github.com/spf13/cobra"
)

func newRemoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Drive the remote vulnerability scanner",
	}
	cmd.AddCommand(newRemoteScanCmd(a), newRemoteCheckCmd(a), newRemoteListCmd(a, "templates"), newRemoteListCmd(a, "folders"))
	return cmd
}

func newRemoteScanCmd(a *app) *cobra.Command {
	var (
		target   string
		name     string
		interval time.Duration
		maxPolls int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Submit a scan, wait for it and fetch the findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.remote()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = a.cfg.Remote.PollInterval
			}
			if maxPolls <= 0 {
				maxPolls = a.cfg.Remote.MaxPolls
			}
			if name == "" {
				name = fmt.Sprintf("harpoon %s %s", target, time.Now().Format("2006-01-02 15:04"))
			}
			res, err := p.Run(cmd.Context(), domain.ScanTarget{Host: target}, name, interval, maxPolls)
			if res != nil {
				if pErr := printJSON(cmd, res); pErr != nil {
					return pErr
				}
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&target, "target", "t", "", "Targets to scan")
	flags.StringVar(&name, "name", "", "Scan name shown by the remote scanner")
	flags.DurationVar(&interval, "interval", 0, "Status poll interval (default from config)")
	flags.IntVar(&maxPolls, "max-polls", 0, "Give up after this many polls (default from config)")
	cmd.MarkFlagRequired("target")
	return cmd
}

func newRemoteCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check connectivity and show the status indicator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.remote()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeouts.Status)
			defer cancel()
			checkErr := p.Check(ctx)
			if err := printJSON(cmd, p.Indicator().Snapshot()); err != nil {
				return err
			}
			return checkErr
		},
	}
}

func newRemoteListCmd(a *app, what string) *cobra.Command {
	return &cobra.Command{
		Use:   what,
		Short: "List remote scan " + what,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.remote(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeouts.Status)
			defer cancel()

			var (
				v   any
				err error
			)
			if what == "templates" {
				v, err = a.client.ListTemplates(ctx)
			} else {
				v, err = a.client.ListFolders(ctx)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, v)
		},
	}
}
