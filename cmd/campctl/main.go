// Command campctl queries campground availability from the command line
// using the same client, matcher and scorer as the server.
//
// Usage:
//
//	campctl check 232447 --month 2024-06 --tent-only
//	campctl score 232447
//	campctl rank-sites 232447 --month 2024-07
//	campctl rank 232447 232448 232449
//	campctl weekends 232447
//	campctl search "upper pines" --lat 37.73 --lon -119.56
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/neexbeast/campwatch/internal/availability"
	"github.com/neexbeast/campwatch/internal/config"
	"github.com/neexbeast/campwatch/internal/difficulty"
	"github.com/neexbeast/campwatch/internal/watcher"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "campctl",
		Short:        "Campground availability CLI",
		SilenceUsage: true,
	}

	root.AddCommand(checkCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(rankSitesCmd())
	root.AddCommand(rankCmd())
	root.AddCommand(weekendsCmd())
	root.AddCommand(searchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// availability commands
// --------------------------------------------------------------------------

func checkCmd() *cobra.Command {
	var (
		month string
		w     watcher.Watcher
	)
	cmd := &cobra.Command{
		Use:   "check <campground-id>",
		Short: "List available site-days matching the given filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMonth(month, args[0], func(p *availability.Payload) error {
				w.CampgroundID = p.CampgroundID
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"campground_id": p.CampgroundID,
					"month":         availability.FormatMonth(p.Month),
					"score":         difficulty.Score(p),
					"matches":       watcher.Match(w, p),
				})
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default current month)")
	cmd.Flags().StringVar(&w.SiteType, "site-type", "", "Exact site type label")
	cmd.Flags().BoolVar(&w.TentOnly, "tent-only", false, "Only tent-only sites")
	cmd.Flags().BoolVar(&w.NoRV, "no-rv", false, "Only sites that exclude RVs")
	cmd.Flags().StringVar(&w.Loop, "loop", "", "Exact loop name")
	return cmd
}

func scoreCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "score <campground-id>",
		Short: "Print the booking difficulty of a campground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMonth(month, args[0], func(p *availability.Payload) error {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"campground_id": p.CampgroundID,
					"month":         availability.FormatMonth(p.Month),
					"score":         difficulty.Score(p),
				})
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default current month)")
	return cmd
}

func rankSitesCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "rank-sites <campground-id>",
		Short: "Rank the sites of a campground, scarcest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMonth(month, args[0], func(p *availability.Payload) error {
				return printJSON(cmd.OutOrStdout(), difficulty.RankSites(p))
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default current month)")
	return cmd
}

func weekendsCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "weekends <campground-id>",
		Short: "List available Friday and Saturday nights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMonth(month, args[0], func(p *availability.Payload) error {
				return printJSON(cmd.OutOrStdout(), availability.AvailableWeekends(p.Records()))
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default current month)")
	return cmd
}

func rankCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "rank <campground-id>...",
		Short: "Rank campgrounds by booking difficulty, hardest first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *availability.Client) error {
				m, err := availability.ParseMonth(month, time.Now())
				if err != nil {
					return err
				}
				scores, err := difficulty.RankCampgrounds(ctx, c, args, m)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), scores)
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default current month)")
	return cmd
}

// --------------------------------------------------------------------------
// search command
// --------------------------------------------------------------------------

func searchCmd() *cobra.Command {
	var lat, lon string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search campgrounds by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *availability.Client) error {
				results, err := c.Search(ctx, args[0], lat, lon)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().StringVar(&lat, "lat", "", "Latitude to search near")
	cmd.Flags().StringVar(&lon, "lon", "", "Longitude to search near")
	return cmd
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

func withClient(fn func(ctx context.Context, c *availability.Client) error) error {
	cfg, err := config.LoadClient()
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c := availability.NewClientWithURLs(cfg.AvailabilityURL, cfg.SearchURL,
		availability.WithTimeout(cfg.FetchTimeout),
		availability.WithRateLimit(cfg.UpstreamRPS, 2),
		availability.WithAPIKey(cfg.RIDBAPIKey),
	)

	if err := fn(ctx, c); err != nil {
		logger.Error("command failed", "err", err)
		return err
	}
	return nil
}

func withMonth(month, campgroundID string, fn func(p *availability.Payload) error) error {
	return withClient(func(ctx context.Context, c *availability.Client) error {
		m, err := availability.ParseMonth(month, time.Now())
		if err != nil {
			return err
		}
		p, err := c.Fetch(ctx, campgroundID, m)
		if err != nil {
			return err
		}
		return fn(p)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
