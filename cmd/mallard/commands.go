package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/m4xw311/mallard/agent/terminal"
	"github.com/m4xw311/mallard/config"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func (c *cli) appOptions(cmd *cobra.Command, index bool) appOptions {
	opts := appOptions{
		Mode:      c.mode,
		Verbosity: c.toolVerbosity,
		Toolset:   c.toolset,
		Index:     index,
		Markdown:  isTerminal(cmd.OutOrStdout()),
		Output:    cmd.OutOrStdout(),
	}
	// Without a terminal on stdin there is nothing for liner to edit.
	if !isTerminal(cmd.InOrStdin()) {
		opts.Input = terminal.NewPlainInput(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return opts
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *cli) runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), c.cfg, c.root, c.appOptions(cmd, !c.skipIndex), c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.terminal.Run(cmd.Context())
}

func (c *cli) runOnce(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), c.cfg, c.root, c.appOptions(cmd, false), c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.terminal.RunOnce(cmd.Context(), strings.Join(args, " "))
}

func (c *cli) runClear(cmd *cobra.Command, args []string) error {
	store, err := storage.New(c.cfg.DataPath(c.root))
	if err != nil {
		return err
	}
	history, err := session.OpenHistory(store, c.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !c.assumeYes {
		fmt.Fprintf(out, "Clear the conversation history in %s? [y/N]: ", history.Path())
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			fmt.Fprintln(out, "History kept.")
			return nil
		}
	}

	if err := history.Clear(); err != nil {
		return err
	}
	c.logger.Info("history cleared", zap.String("path", history.Path()))
	fmt.Fprintln(out, "History cleared.")
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, err := config.SetGlobal(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
	return nil
}
