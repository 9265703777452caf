package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wozniakbe/prefsync/appstate"
	"github.com/wozniakbe/prefsync/persisted"
)

func (c *cli) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the settings record",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printYAML(cmd.OutOrStdout(), c.client.Settings.Get(cmd.Context()))
		},
	}

	set := &cobra.Command{
		Use:   "set field=value...",
		Short: "Change one or more settings fields",
		Long: `Change one or more settings fields. Fields are named as in the stored
record (maxDistanceKm, verifiedOnly, proOnly, vipOnly, selectedServices,
reduceMotion, language, theme, exploreMode). selectedServices takes a
comma-separated list; an empty value clears it.

The result is validated before it is written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := c.client.Settings.Modify(cmd.Context(), func(prev appstate.Settings) (appstate.Settings, error) {
				return applyAssignments(prev, args)
			})
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), next)
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			next := c.client.Settings.Set(cmd.Context(), persisted.Literal(appstate.DefaultSettings()))
			return printYAML(cmd.OutOrStdout(), next)
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle-service name",
		Short: "Select a service, or deselect it if already selected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("service name is required")
			}
			next := c.client.Settings.Set(cmd.Context(), persisted.Updater(func(prev appstate.Settings) appstate.Settings {
				return prev.ToggleService(name)
			}))
			return printYAML(cmd.OutOrStdout(), next)
		},
	}

	cmd.AddCommand(show, set, reset, toggle)
	return cmd
}

// applyAssignments applies field=value pairs to a copy of s and validates
// the result.
func applyAssignments(s appstate.Settings, args []string) (appstate.Settings, error) {
	next := s.Clone()
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok {
			return s, fmt.Errorf("expected field=value, got %q", arg)
		}
		if err := assign(&next, strings.TrimSpace(field), strings.TrimSpace(value)); err != nil {
			return s, err
		}
	}
	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

func assign(s *appstate.Settings, field, value string) error {
	var err error
	switch field {
	case "maxDistanceKm":
		s.MaxDistanceKm, err = strconv.ParseFloat(value, 64)
	case "verifiedOnly":
		s.VerifiedOnly, err = parseBool(value)
	case "proOnly":
		s.ProOnly, err = parseBool(value)
	case "vipOnly":
		s.VIPOnly, err = parseBool(value)
	case "reduceMotion":
		s.ReduceMotion, err = parseBool(value)
	case "language":
		s.Language, err = appstate.ParseLanguage(value)
	case "theme":
		s.Theme, err = appstate.ParseTheme(value)
	case "exploreMode":
		s.ExploreMode, err = appstate.ParseExploreMode(value)
	case "selectedServices":
		services := []string{}
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				services = append(services, name)
			}
		}
		s.SelectedServices = services
	default:
		return fmt.Errorf("unknown settings field %q", field)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
