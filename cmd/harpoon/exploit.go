package main

import (
	"bytemomo/harpoon/internal/exploit"

	"github.com/spf13/cobra"
)

func newExploitCmd(a *app) *cobra.Command {
	var req exploit.Request

	cmd := &cobra.Command{
		Use:   "exploit",
		Short: "Map a vulnerability to a Metasploit module and run it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.exploit.Run(cmd.Context(), req)
			if res != nil {
				if pErr := printJSON(cmd, res); pErr != nil {
					return pErr
				}
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.VulnID, "vuln", "", "Vulnerability identifier (CVE, script or template id)")
	flags.StringVarP(&req.Host, "target", "t", "", "Target host")
	flags.Uint16VarP(&req.Port, "port", "p", 0, "Target port")
	flags.StringVarP(&req.Module, "module", "m", "", "Metasploit module, skips the lookup")
	flags.StringToStringVarP(&req.Options, "option", "o", nil, "Extra module options KEY=VALUE")
	cmd.MarkFlagRequired("vuln")
	cmd.MarkFlagRequired("target")

	cmd.AddCommand(newExploitResolveCmd(a),
		&cobra.Command{
			Use:   "mappings",
			Short: "Show the vulnerability to module table",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printJSON(cmd, a.mapper.Mappings())
			},
		},
		&cobra.Command{
			Use:   "reports",
			Short: "List exploitation reports",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := a.exploit.Reports()
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			},
		},
		&cobra.Command{
			Use:   "report NAME",
			Short: "Show one exploitation report",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := a.exploit.Report(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			},
		},
	)
	return cmd
}

func newExploitResolveCmd(a *app) *cobra.Command {
	var (
		port   uint16
		module string
	)
	cmd := &cobra.Command{
		Use:   "resolve VULN",
		Short: "Show which module a vulnerability maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.mapper.Resolve(args[0], port, module)
			if err := printJSON(cmd, r); err != nil {
				return err
			}
			return r.Err()
		},
	}
	cmd.Flags().Uint16VarP(&port, "port", "p", 0, "Target port, enables SSL/HTTP fallbacks")
	cmd.Flags().StringVarP(&module, "module", "m", "", "Manual module override")
	return cmd
}
