package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	snemo "github.com/next-exp/snemo_go/pkg"
)

const Version = "0.3.0"

var configuration snemo.Configuration

var (
	logger         Logger
	VerbosityLevel int
	DiscardErrors  bool
)

func init() {
	logger = NewLogger(os.Stdout, os.Stderr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "snemo",
		Short:         "SuperNEMO tracker reconstruction and trigger emulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRecoCommand(), newTriggerCommand(), newMemgenCommand(), newVersionCommand())
	return root
}

// loadRunConfiguration reads the configuration file and installs it, with the
// logger, in the library packages.
func loadRunConfiguration(filename string) error {
	var err error
	configuration, err = snemo.LoadConfiguration(filename)
	if err != nil {
		return fmt.Errorf("error reading configuration file: %w", err)
	}
	snemo.SetConfiguration(configuration)
	snemo.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	DiscardErrors = configuration.Discard
	if VerbosityLevel > 0 {
		logger.Info(fmt.Sprintf("Reading configuration file: %s", filename), "main")
		printConfiguration(configuration, logger)
	}
	return nil
}

func newRecoCommand() *cobra.Command {
	var configFilename string
	cmd := &cobra.Command{
		Use:   "reco",
		Short: "Cluster and sequence the tracker hits of an event file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadRunConfiguration(configFilename); err != nil {
				return err
			}
			return runReco(cmd.Context(), configuration)
		},
	}
	cmd.Flags().StringVar(&configFilename, "config", "", "Configuration file path")
	cmd.MarkFlagRequired("config")
	return cmd
}

func newTriggerCommand() *cobra.Command {
	var configFilename string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run the trigger emulation over the crate trigger words of an event file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadRunConfiguration(configFilename); err != nil {
				return err
			}
			return runTrigger(cmd.Context(), configuration)
		},
	}
	cmd.Flags().StringVar(&configFilename, "config", "", "Configuration file path")
	cmd.MarkFlagRequired("config")
	return cmd
}

func newMemgenCommand() *cobra.Command {
	var out, mode string
	cmd := &cobra.Command{
		Use:   "memgen",
		Short: "Build the tracker trigger memories and store them as mem1.def to mem5.def",
		RunE: func(cmd *cobra.Command, args []string) error {
			snemo.SetLogger(logger)
			return runMemgen(out, mode)
		},
	}
	cmd.Flags().StringVar(&out, "out", "data/memories", "output directory")
	cmd.Flags().StringVar(&mode, "mode", "mult", "mem2 classification: pattern or mult")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "snemo", Version)
		},
	}
}

// fatal tells errors that stop the run from errors that only lose one
// event.
func fatal(err error) bool {
	var cfgErr *snemo.ConfigurationError
	var violation *snemo.InvariantViolation
	return errors.As(err, &cfgErr) || errors.As(err, &violation)
}
