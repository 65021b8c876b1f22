// mdevctl is a utility for managing and persisting devices in the mediated
// device framework of the Linux kernel. Mediated devices are sub-devices of
// a parent device (e.g. a vGPU) which can be created dynamically and
// assigned to virtual machines.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mdevctl/mdevctl/internal/commands"
	"github.com/mdevctl/mdevctl/internal/config"
	"github.com/mdevctl/mdevctl/internal/env"
	"github.com/mdevctl/mdevctl/internal/logging"
)

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelWarn)

	logger := logging.New(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	app := &application{logger: logger, levelVar: &levelVar}

	root := app.newRootCommand()
	// installed as the 'lsmdev' symlink, the tool acts as the list command
	if filepath.Base(os.Args[0]) == "lsmdev" {
		list := app.newListCommand()
		list.Use = "lsmdev"
		root = app.decorateRoot(list)
	}

	if err := root.Execute(); err != nil {
		logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

type application struct {
	logger   *slog.Logger
	levelVar *slog.LevelVar

	configPath string
	logLevel   string

	env env.Environment
}

func (a *application) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mdevctl",
		Short: "Manage mediated devices and their persisted configurations",
	}
	root.AddCommand(
		a.newDefineCommand(),
		a.newUndefineCommand(),
		a.newModifyCommand(),
		a.newStartCommand(),
		a.newStopCommand(),
		a.newListCommand(),
		a.newTypesCommand(),
		a.newStartParentMdevsCommand(),
	)
	return a.decorateRoot(root)
}

// decorateRoot attaches the persistent flags and setup shared by the mdevctl
// and lsmdev entry points.
func (a *application) decorateRoot(root *cobra.Command) *cobra.Command {
	root.SilenceErrors = true
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the tool configuration file")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}

		levelName := cfg.LogLevel
		if a.logLevel != "" {
			levelName = a.logLevel
		}
		level, err := logging.ParseLevel(levelName)
		if err != nil {
			return err
		}
		a.levelVar.Set(level)

		a.env = env.New(cfg.Root)
		a.logger.Debug("environment configured", "root", a.env.Root())
		return env.SelfCheck(a.env)
	}
	return root
}

func (a *application) newDefineCommand() *cobra.Command {
	var opts commands.DefineOptions
	cmd := &cobra.Command{
		Use:   "define",
		Short: "Define a persistent mediated device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Define(a.env, a.logger, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.UUID, "uuid", "u", "", "UUID of the device (generated when omitted)")
	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "Parent device name")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "Mediated device type")
	cmd.Flags().BoolVarP(&opts.Auto, "auto", "a", false, "Start the device automatically with its parent")
	cmd.Flags().StringVar(&opts.JSONFile, "jsonfile", "", "Define the device from a JSON config record")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Proceed even if the pre callout fails")
	return cmd
}

func (a *application) newUndefineCommand() *cobra.Command {
	var opts commands.UndefineOptions
	cmd := &cobra.Command{
		Use:   "undefine",
		Short: "Remove a persistent mediated device definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Undefine(a.env, a.logger, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.UUID, "uuid", "u", "", "UUID of the device")
	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "Parent device name")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Proceed even if the pre callout fails")
	return cmd
}

func (a *application) newModifyCommand() *cobra.Command {
	opts := commands.ModifyOptions{AttrIndex: -1}
	cmd := &cobra.Command{
		Use:   "modify",
		Short: "Modify a mediated device definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Modify(a.env, a.logger, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.UUID, "uuid", "u", "", "UUID of the device")
	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "Parent device name")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "New mediated device type")
	cmd.Flags().StringVar(&opts.AddAttr, "addattr", "", "Name of an attribute to add")
	cmd.Flags().StringVar(&opts.AttrValue, "value", "", "Value for the added attribute")
	cmd.Flags().BoolVar(&opts.DelAttr, "delattr", false, "Delete an attribute")
	cmd.Flags().IntVar(&opts.AttrIndex, "index", -1, "Attribute index for --addattr/--delattr")
	cmd.Flags().BoolVarP(&opts.Auto, "auto", "a", false, "Start the device automatically with its parent")
	cmd.Flags().BoolVarP(&opts.Manual, "manual", "m", false, "Start the device only on request")
	cmd.Flags().StringVar(&opts.JSONFile, "jsonfile", "", "Replace the config record with a JSON document")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Proceed even if the pre callout fails")
	return cmd
}

func (a *application) newStartCommand() *cobra.Command {
	var opts commands.StartOptions
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a mediated device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Start(a.env, a.logger, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.UUID, "uuid", "u", "", "UUID of the device (generated when omitted)")
	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "Parent device name")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "Mediated device type")
	cmd.Flags().StringVar(&opts.JSONFile, "jsonfile", "", "Start a transient device from a JSON config record")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Proceed even if the pre callout fails")
	return cmd
}

func (a *application) newStopCommand() *cobra.Command {
	var opts commands.StopOptions
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop an active mediated device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Stop(a.env, a.logger, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.UUID, "uuid", "u", "", "UUID of the device")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Proceed even if the pre callout fails")
	return cmd
}

func (a *application) newListCommand() *cobra.Command {
	var opts commands.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active or defined mediated devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := commands.List(a.env, a.logger, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Defined, "defined", "d", false, "List defined devices instead of active ones")
	cmd.Flags().BoolVar(&opts.DumpJSON, "dumpjson", false, "Output as JSON")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Include device attributes")
	cmd.Flags().StringVarP(&opts.UUID, "uuid", "u", "", "Limit to one device uuid")
	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "Limit to one parent device")
	return cmd
}

func (a *application) newTypesCommand() *cobra.Command {
	var opts commands.TypesOptions
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List mediated device types supported on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := commands.Types(a.env, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "Limit to one parent device")
	cmd.Flags().BoolVar(&opts.DumpJSON, "dumpjson", false, "Output as JSON")
	return cmd
}

func (a *application) newStartParentMdevsCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "start-parent-mdevs PARENT",
		Short:  "Start all auto-start devices defined under a parent",
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.StartParentMdevs(a.env, a.logger, args[0])
		},
	}
}
