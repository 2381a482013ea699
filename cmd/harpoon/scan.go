package main

import (
	"context"
	"strings"

	"bytemomo/harpoon/internal/domain"

	"github.com/spf13/cobra"
)

type targetOptions struct {
	host  string
	ports string
}

func (o *targetOptions) bind(cmd *cobra.Command, withPorts bool) {
	flags := cmd.Flags()
	flags.StringVarP(&o.host, "target", "t", "", "Host, CIDR, range or URL to scan")
	if withPorts {
		flags.StringVarP(&o.ports, "ports", "p", "", "Ports or category ("+categoryList()+")")
	}
	cmd.MarkFlagRequired("target")
}

func (o *targetOptions) target() domain.ScanTarget {
	return domain.ScanTarget{Host: o.host, Ports: o.ports}
}

func categoryList() string {
	return strings.Join(domain.PortCategoryNames(), ", ")
}

type scanFunc func(context.Context, domain.ScanTarget) (*domain.ScanResult, error)

func newNmapCmd(use, short string, withPorts bool, run func(a *app) scanFunc, a *app) *cobra.Command {
	var o targetOptions
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := run(a)(cmd.Context(), o.target())
			if res != nil {
				if pErr := printJSON(cmd, res); pErr != nil {
					return pErr
				}
			}
			return err
		},
	}
	o.bind(cmd, withPorts)
	return cmd
}

func newDiscoverCmd(a *app) *cobra.Command {
	return newNmapCmd("discover", "Find live hosts with a ping sweep", false,
		func(a *app) scanFunc { return a.scanner.Discover }, a)
}

func newPortsCmd(a *app) *cobra.Command {
	return newNmapCmd("ports", "TCP connect scan of the given ports", true,
		func(a *app) scanFunc { return a.scanner.ScanPorts }, a)
}

func newServicesCmd(a *app) *cobra.Command {
	return newNmapCmd("services", "Detect service versions on the given ports", true,
		func(a *app) scanFunc { return a.scanner.EnumerateServices }, a)
}

func newVulnCmd(a *app) *cobra.Command {
	return newNmapCmd("vuln", "Run the nmap vuln scripts and store reports", true,
		func(a *app) scanFunc { return a.scanner.VulnScan }, a)
}
