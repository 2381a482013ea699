package main

import (
	"encoding/json"
	"fmt"

	"bytemomo/harpoon/internal/adapter/htmlreport"
	"bytemomo/harpoon/internal/adapter/jsonreport"
	"bytemomo/harpoon/internal/adapter/yamlconfig"
	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/bruteforce"
	"bytemomo/harpoon/internal/capture"
	"bytemomo/harpoon/internal/config"
	"bytemomo/harpoon/internal/exploit"
	"bytemomo/harpoon/internal/invoker"
	"bytemomo/harpoon/internal/nuclei"
	"bytemomo/harpoon/internal/remote"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/internal/scanner"
	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	config    string
	envFiles  []string
	logLevel  string
	artifacts string
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *log.Logger
	tools   *invoker.Invoker
	store   *artifact.Store
	reports *report.Generator
	raw     *report.Generator

	scanner *scanner.Scanner
	nuclei  *nuclei.Runner
	brute   *bruteforce.Runner
	sniffer *capture.Sniffer
	exploit *exploit.Runner
	mapper  *exploit.Mapper
	poller  *remote.Poller
	client  *remote.Client
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	a := &app{}

	cmd := &cobra.Command{
		Use:           "harpoon",
		Short:         "Offensive security scan orchestration",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(g)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return harpoonerr.E("cli", harpoonerr.ValidationError, err.Error(), err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.config, "config", "c", "", "Path to harpoon YAML config")
	flags.StringSliceVar(&g.envFiles, "env-file", []string{".env"}, "Dotenv files loaded before the config")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&g.artifacts, "artifacts", "", "Artifact root directory (overrides config)")

	cmd.AddCommand(
		newDiscoverCmd(a),
		newPortsCmd(a),
		newServicesCmd(a),
		newVulnCmd(a),
		newAssessCmd(a),
		newNucleiCmd(a),
		newBruteCmd(a),
		newCaptureCmd(a),
		newRemoteCmd(a),
		newExploitCmd(a),
		newArtifactsCmd(a),
		newStatusCmd(a),
	)
	return cmd
}

func (a *app) init(g globalFlags) error {
	if err := config.LoadDotenv(g.envFiles...); err != nil {
		return harpoonerr.E("cli.env", harpoonerr.ValidationError, "could not load env file", err)
	}
	cfg, err := yamlconfig.Load(g.config)
	if err != nil {
		return harpoonerr.E("cli.config", harpoonerr.ValidationError, err.Error(), err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.artifacts != "" {
		cfg.Artifacts.Root = g.artifacts
	}

	a.cfg = cfg
	a.log = logger.New(cfg.Log)
	entry := log.NewEntry(a.log)

	a.tools = invoker.New(entry, cfg.Tools)
	a.store = artifact.New(cfg.Artifacts.Root, entry)
	a.reports = report.NewGenerator(a.store, htmlreport.New(), entry)
	a.raw = report.NewGenerator(a.store, jsonreport.New(), entry)

	a.scanner = scanner.New(a.tools, a.reports, a.raw, cfg.Timeouts.Scan, entry)
	a.nuclei = nuclei.NewRunner(a.tools, a.store, a.reports, cfg.Nuclei.Templates, cfg.Timeouts.Nuclei, entry)
	a.brute = bruteforce.NewRunner(a.tools, a.store, bruteforce.Wordlists{
		SystemDirs: cfg.Wordlists.SystemDirs,
		PasswdFile: cfg.Wordlists.PasswdFile,
	}, cfg.Timeouts.Bruteforce, entry)
	a.sniffer = capture.NewSniffer(a.tools, a.store, a.reports, cfg.Timeouts.Capture, entry)

	extra := map[string]string{}
	if cfg.Exploit.MappingsFile != "" {
		if extra, err = exploit.LoadMappings(cfg.Exploit.MappingsFile); err != nil {
			return err
		}
	}
	a.mapper = exploit.NewMapper(extra)
	a.exploit = exploit.NewRunner(a.mapper, a.tools, a.store, cfg.Timeouts.Exploit, entry)

	if cfg.Remote.Enabled() {
		client, err := remote.NewClient(remote.ClientConfig{
			URL:         cfg.Remote.URL,
			AccessKey:   cfg.Remote.AccessKey,
			SecretKey:   cfg.Remote.SecretKey,
			InsecureTLS: cfg.Remote.InsecureTLS,
		}, entry)
		if err != nil {
			return err
		}
		a.client = client
		a.poller = remote.NewPoller(client, remote.NewIndicator(), cfg.Remote.Template, entry)
		a.poller.SetReports(a.reports)
	}
	return nil
}

func (a *app) remote() (*remote.Poller, error) {
	if a.poller == nil {
		return nil, harpoonerr.E("cli.remote", harpoonerr.ValidationError,
			"remote scanner is not configured (set remote.url, remote.access_key and remote.secret_key)", nil)
	}
	return a.poller, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
