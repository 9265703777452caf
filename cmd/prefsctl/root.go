package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wozniakbe/prefsync/appstate"
	"github.com/wozniakbe/prefsync/kv"
)

// cli carries the flag values and the state opened for a single invocation.
type cli struct {
	dbPath    string
	namespace string
	logLevel  string

	db     *kv.SQLiteStorage
	client *appstate.Client
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "prefsctl",
		Short: "Inspect and edit persisted client state",
		Long: `prefsctl reads and writes the settings, consent and session records
stored under a key namespace in a SQLite state file.

Reads never fail on bad data: a missing or unreadable record is shown as
its default value, exactly as the application would see it.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  c.open,
		PersistentPostRunE: c.close,
	}

	root.PersistentFlags().StringVar(&c.dbPath, "db", "prefsync.db", "Path to the SQLite state file")
	root.PersistentFlags().StringVar(&c.namespace, "namespace", appstate.DefaultNamespace, "Key namespace")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(c.settingsCmd(), c.consentCmd(), c.sessionCmd())
	return root
}

func (c *cli) open(cmd *cobra.Command, _ []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", c.logLevel)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	db, err := kv.OpenSQLite(c.dbPath)
	if err != nil {
		return err
	}
	c.db = db
	c.client = appstate.NewClient(db, c.namespace, logger)
	logger.Debug("opened state file", "path", c.dbPath, "settingsKey", c.client.Keys().Settings)
	return nil
}

func (c *cli) close(_ *cobra.Command, _ []string) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// printYAML writes v to w as a YAML document.
func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// parseBool accepts the usual spellings of a flag value.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
