package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var errNoSession = errors.New("no session stored")

func (c *cli) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show, set or clear the session identifiers",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the session identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, ok := c.client.Session.IDs(cmd.Context())
			if !ok {
				return errNoSession
			}
			return printYAML(cmd.OutOrStdout(), ids)
		},
	}

	set := &cobra.Command{
		Use:   "set userId profileId",
		Short: "Store the session identifiers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, profileID := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			if userID == "" || profileID == "" {
				return fmt.Errorf("userId and profileId are required")
			}
			session := c.client.Session
			session.SetIDs(cmd.Context(), userID, profileID)

			ids, ok := session.IDs(cmd.Context())
			if !ok || ids.UserID != userID || ids.ProfileID != profileID {
				return fmt.Errorf("session identifiers were not stored")
			}
			return printYAML(cmd.OutOrStdout(), ids)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the session identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.client.Session.Clear(cmd.Context())
			return nil
		},
	}

	cmd.AddCommand(show, set, clearCmd)
	return cmd
}
