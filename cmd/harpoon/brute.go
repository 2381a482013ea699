package main

import (
	"os"

	"bytemomo/harpoon/internal/bruteforce"
	"bytemomo/harpoon/pkg/harpoonerr"

	"github.com/spf13/cobra"
)

func newBruteCmd(a *app) *cobra.Command {
	var req bruteforce.Request

	cmd := &cobra.Command{
		Use:   "brute",
		Short: "Credential brute forcing with hydra",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.brute.Run(cmd.Context(), req)
			if res != nil {
				if pErr := printJSON(cmd, res); pErr != nil {
					return pErr
				}
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&req.Target, "target", "t", "", "Host to attack")
	flags.StringVarP(&req.Service, "service", "s", "ssh", "Service name as understood by hydra")
	flags.StringVarP(&req.UserList, "users", "L", "", "User list file")
	flags.StringVarP(&req.PassList, "passwords", "P", "", "Password list file")
	flags.IntVar(&req.Options.Tasks, "tasks", 0, "Parallel connections")
	flags.BoolVarP(&req.Options.Verbose, "verbose", "v", false, "Verbose hydra output")
	flags.Uint16Var(&req.Options.Port, "port", 0, "Non default service port")
	flags.StringVar(&req.Options.FormPath, "form-path", "", "Login form path for *-form services")
	flags.StringVar(&req.Options.FormData, "form-data", "", "Login form body with ^USER^ and ^PASS^")
	flags.StringVar(&req.Options.FormFailure, "form-failure", "", "Failure condition, e.g. F=incorrect")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("users")
	cmd.MarkFlagRequired("passwords")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "services",
			Short: "List common services",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printJSON(cmd, bruteforce.Services())
			},
		},
		&cobra.Command{
			Use:   "wordlists",
			Short: "List available user and password lists",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				users, passwords, err := a.brute.Wordlists()
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"users": users, "passwords": passwords})
			},
		},
		newWordlistAddCmd(a),
	)
	return cmd
}

func newWordlistAddCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "add-wordlist FILE",
		Short: "Store a custom wordlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return harpoonerr.E("cli.wordlist", harpoonerr.NotFound, "cannot read "+args[0], err)
			}
			path, err := a.brute.CreateWordlist(string(content), kind)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"path": path})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "passlist", "userlist or passlist")
	return cmd
}
