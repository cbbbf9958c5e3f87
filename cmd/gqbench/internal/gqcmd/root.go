// Package gqcmd contains the cobra commands for the gqbench binary.
package gqcmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewRootCmd returns the root gqbench command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	var logLevel slog.Level

	cmd := &cobra.Command{
		Use:   "gqbench",
		Short: "gqbench measures how queue capacity affects transaction submission throughput",

		SilenceUsage: true,
	}

	cmd.PersistentFlags().Var(
		(*levelValue)(&logLevel), "log-level",
		"minimum log level (debug, info, warn, error)",
	)

	cmd.AddCommand(
		newRunCmd(func(w io.Writer) *slog.Logger {
			return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
		}),
		newVersionCmd(),
	)

	return cmd
}

// levelValue adapts slog.Level to a pflag value.
type levelValue slog.Level

func (l *levelValue) String() string {
	return slog.Level(*l).String()
}

func (l *levelValue) Set(s string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", s, err)
	}
	*l = levelValue(lvl)
	return nil
}

func (l *levelValue) Type() string {
	return "level"
}
