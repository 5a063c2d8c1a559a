// Package config holds the shell's CLI-flag configuration, populated the
// same way the teacher populates server/client config: a plain struct
// with a Flags method that wires it to a *cobra.Command.
package config

import (
	"github.com/spf13/cobra"

	"github.com/joshuarubin/rsh/internal/history"
)

// Config is every flag the shell's root command accepts.
type Config struct {
	// Command is the string given to -c; when non-empty the shell runs
	// it non-interactively instead of reading a script file or a tty.
	Command string

	// Debug raises the slog level to Debug and enables the extra fork/
	// waitpid/signal diagnostics described in SPEC_FULL.md §8.
	Debug bool

	// HistoryFile is where interactive history is loaded from and saved
	// to.
	HistoryFile string
}

// Flags registers the shell's flags on cmd, following the teacher's
// Config.Flags(cmd) convention.
func (c *Config) Flags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.Command, "command", "c", "", "execute STRING as a command")
	cmd.Flags().BoolVarP(&c.Debug, "log", "l", false, "enable diagnostic logging")
	cmd.Flags().StringVar(&c.HistoryFile, "history-file", history.DefaultPath, "path to the history file")
}
