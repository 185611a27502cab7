package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/m4xw311/mallard/config"
	"github.com/m4xw311/mallard/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli holds the flag values and the state shared by every command of one
// invocation.
type cli struct {
	toolset       string
	mode          string
	toolVerbosity string
	verbose       bool
	skipIndex     bool
	assumeYes     bool

	cfg    *config.Config
	root   string
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "mallard",
		Short: "Mallard - an LLM agent for your project directory",
		Long: `Mallard is an interactive command-line agent. It talks to an LLM backend
and lets the model read, write and search files and run git operations in the
current project, asking before anything changes.

Run without arguments to start the interactive chat.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: c.runChat,
	}

	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&c.toolset, "toolset", "t", "", "Toolset to expose to the model (defaults to 'default')")
	rootCmd.PersistentFlags().StringVarP(&c.mode, "mode", "m", "prompt", "Execution mode: 'prompt' or 'auto'")
	rootCmd.PersistentFlags().StringVar(&c.toolVerbosity, "tool-verbosity", "info", "Tool verbosity level: 'none', 'info' or 'all'")
	rootCmd.Flags().BoolVar(&c.skipIndex, "skip-index", false, "Do not explore the project on first start")

	runCmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Send one prompt and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runOnce,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the conversation history of this project",
		Args:  cobra.NoArgs,
		RunE:  c.runClear,
	}
	clearCmd.Flags().BoolVarP(&c.assumeYes, "yes", "y", false, "Do not ask for confirmation")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the user-level configuration",
		// The user config must stay editable when the current one is broken.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	configSetCmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a key in ~/.mallard/config.yaml",
		Long:  "Sets one of the global keys: " + fmt.Sprint(config.GlobalKeys),
		Args:  cobra.ExactArgs(2),
		RunE:  runConfigSet,
	}
	configCmd.AddCommand(configSetCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
	return rootCmd
}

// setup loads the configuration and builds the logger. Logs go to the data
// directory so stdout stays free for the conversation.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	root, err := os.Getwd()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.DataPath(root), c.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.cfg, c.root, c.logger = cfg, root, logger
	c.logger.Debug("configuration loaded",
		zap.String("llm", cfg.LLMClient),
		zap.String("model", cfg.Model),
		zap.String("project", root))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
