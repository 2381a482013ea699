package main

import (
	"github.com/spf13/cobra"
)

func newArtifactsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Browse stored artifacts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list CATEGORY",
			Short: "List artifacts of a category, newest first",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				entries, err := a.store.List(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			},
		},
		&cobra.Command{
			Use:   "get CATEGORY NAME",
			Short: "Write an artifact to stdout",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := a.store.Open(args[0], args[1])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
	)
	return cmd
}
