package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/models"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the calculation settings",
	}
	cmd.AddCommand(newSettingsGetCmd(), newSettingsSetCmd())
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			printSettings(cmd.OutOrStdout(), a.coord.Settings())
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var (
		method, madhab, rule string
		astronomical         bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the settings and persist them",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("method") && !flags.Changed("madhab") &&
				!flags.Changed("high-latitude-rule") && !flags.Changed("astronomical-maghrib") {
				return fmt.Errorf("nothing to change")
			}

			var (
				methodID catalog.MethodID
				madhabID catalog.MadhabID
				ruleID   catalog.HighLatitudeRule
				err      error
			)
			if flags.Changed("method") {
				if methodID, err = catalog.ParseMethod(method); err != nil {
					return err
				}
			}
			if flags.Changed("madhab") {
				if madhabID, err = catalog.ParseMadhab(madhab); err != nil {
					return err
				}
			}
			if flags.Changed("high-latitude-rule") {
				if ruleID, err = catalog.ParseHighLatitudeRule(rule); err != nil {
					return err
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.coord.UpdateSettings(cmd.Context(), func(s *models.SettingsSnapshot) {
				if flags.Changed("method") {
					s.Method = methodID
				}
				if flags.Changed("madhab") {
					s.Madhab = madhabID
				}
				if flags.Changed("high-latitude-rule") {
					s.HighLatitudeRule = ruleID
				}
				if flags.Changed("astronomical-maghrib") {
					s.UseAstronomicalMaghrib = astronomical
				}
			})
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "Calculation method key or id")
	cmd.Flags().StringVar(&madhab, "madhab", "", "Madhab key or id")
	cmd.Flags().StringVar(&rule, "high-latitude-rule", "", "auto, middle_of_night, seventh_of_night or twilight_angle")
	cmd.Flags().BoolVar(&astronomical, "astronomical-maghrib", false, "Use the astronomical Maghrib angle where the madhab has one")
	return cmd
}

func printSettings(out io.Writer, s models.SettingsSnapshot) {
	fmt.Fprintf(out, "method:               %s\n", s.Method)
	fmt.Fprintf(out, "madhab:               %s\n", s.Madhab)
	fmt.Fprintf(out, "high latitude rule:   %s\n", s.HighLatitudeRule)
	fmt.Fprintf(out, "astronomical maghrib: %t\n", s.UseAstronomicalMaghrib)
	fmt.Fprintf(out, "version:              %d\n", s.Version)
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "updated:              %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
}
