package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newWatchCmd tracks a live page until interrupted.
func newWatchCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open a page and track reading progress until interrupted",
		Example: `  readingprogress watch --url https://blog.example.com/post
  readingprogress watch --url https://blog.example.com/post --throttle 100ms --autoscroll --text`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			logger := c.logger.With(zap.String("url", cfg.Page.URL))
			logger.Info("starting watch",
				zap.String("container_class", cfg.Page.ContainerClass),
				zap.Duration("throttle", cfg.Tracker.ThrottleTime),
				zap.Bool("autoscroll", cfg.AutoScroll.Enabled),
			)

			a, err := c.deps.newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			duration, _ := cmd.Flags().GetDuration("duration")
			if err := runWithTimeout(cmd.Context(), duration, a.Run); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.String("url", "", "page to track (http, https or file URL)")
	fs.String("class", "", "class name of the content containers (default blogPost)")
	fs.String("css-class", "", "class added to the progress bar element")
	fs.Duration("throttle", 0, "minimum interval between progress updates")
	fs.Bool("headless", true, "run Chrome without a window")
	fs.Bool("autoscroll", false, "scroll the page automatically")
	fs.Float64("autoscroll-step", 0, "pixels per autoscroll step")
	fs.Duration("autoscroll-interval", 0, "delay between autoscroll steps")
	fs.Bool("text", false, "also render the bar on the terminal")
	fs.Bool("dom", true, "render the bar inside the page")
	fs.Bool("serve", false, "serve the HTTP API")
	fs.Int("port", 0, "HTTP API port")
	fs.Bool("tracing", false, "log OpenTelemetry spans for the update pipeline")
	fs.Duration("duration", 0, "stop after this long (0 runs until interrupted)")

	for flag, key := range map[string]string{
		"url":                 "page.url",
		"class":               "page.container_class",
		"css-class":           "page.css_class",
		"throttle":            "tracker.throttle_time",
		"headless":            "browser.headless",
		"autoscroll":          "autoscroll.enabled",
		"autoscroll-step":     "autoscroll.step",
		"autoscroll-interval": "autoscroll.interval",
		"text":                "renderer.text",
		"dom":                 "renderer.dom",
		"serve":               "server.enabled",
		"port":                "server.port",
		"tracing":             "telemetry.tracing",
	} {
		annotate(fs, flag, key)
	}
	return cmd
}

// runWithTimeout bounds a command body that has no natural end.
func runWithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
