package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/coordinator"
	"github.com/rewired-gh/mawaqit/internal/models"
)

func newTimesCmd() *cobra.Command {
	var (
		date     string
		lat, lon float64
		days     int
		asJSON   bool
		method   string
		madhab   string
		ramadan  bool
	)
	cmd := &cobra.Command{
		Use:   "times",
		Short: "Print prayer times",
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

			start := a.coord.Today()
			if date != "" {
				if start, err = models.ParseDate(date); err != nil {
					return err
				}
			}
			var coords *models.Coordinates
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
				coords = &models.Coordinates{Latitude: lat, Longitude: lon}
			}
			if days < 1 {
				days = 1
			}

			// Overrides compute outside the cache and leave stored settings alone.
			flags := cmd.Flags()
			preview := flags.Changed("method") || flags.Changed("madhab") || ramadan
			snap := a.coord.Settings()
			if flags.Changed("method") {
				if snap.Method, err = catalog.ParseMethod(method); err != nil {
					return err
				}
			}
			if flags.Changed("madhab") {
				if snap.Madhab, err = catalog.ParseMadhab(madhab); err != nil {
					return err
				}
			}

			vm := a.coord.ViewModel()
			views := make([]coordinator.DayView, 0, days)
			for i := 0; i < days; i++ {
				var view coordinator.DayView
				if preview {
					view, err = vm.Preview(cmd.Context(), start.AddDays(i), coords, snap, ramadan)
				} else {
					view, err = vm.Day(cmd.Context(), start.AddDays(i), coords)
				}
				if err != nil {
					return fmt.Errorf("%s: %s: %w", start.AddDays(i), view.Message, err)
				}
				views = append(views, view)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			return printDays(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "First day (YYYY-MM-DD), default today")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude, default the configured location")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude, default the configured location")
	cmd.Flags().IntVar(&days, "days", 1, "Number of days to print")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().StringVar(&method, "method", "", "Calculation method key or id, default the stored setting")
	cmd.Flags().StringVar(&madhab, "madhab", "", "Madhab key or id, default the stored setting")
	cmd.Flags().BoolVar(&ramadan, "ramadan", false, "Treat every day as a Ramadan day")
	return cmd
}

func printDays(out io.Writer, views []coordinator.DayView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"DATE", "HIJRI"}
	for _, p := range models.Prayers {
		header = append(header, strings.ToUpper(p.String()))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, v := range views {
		row := []string{v.Date.String(), v.Hijri}
		for _, p := range v.Prayers {
			row = append(row, p.Local)
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if len(views) > 0 {
		v := views[0]
		fmt.Fprintf(w, "\n%s, %s / %s, %s\n", v.Coordinates, v.Method, v.Madhab, v.Zone)
	}
	return w.Flush()
}

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List calculation methods and madhabs",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKEY\tFAJR\tISHA\tNAME")
			for _, m := range catalog.Methods() {
				isha := fmt.Sprintf("%.1f°", m.IshaAngle)
				if m.FixedInterval() {
					isha = fmt.Sprintf("%d min", m.IshaIntervalMinutes)
				}
				fmt.Fprintf(w, "%d\t%s\t%.1f°\t%s\t%s\n", m.ID, m.Key, m.FajrAngle, isha, m.Name)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "ID\tKEY\tASR\tNAME")
			for _, m := range catalog.Madhabs() {
				fmt.Fprintf(w, "%d\t%s\t%.0fx\t%s\n", m.ID, m.Key, m.AsrShadowMultiplier, m.Name)
			}
			return w.Flush()
		},
	}
}
