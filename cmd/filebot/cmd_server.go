package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/filebot/config"
	"github.com/shashiranjanraj/filebot/internal/bot"
	"github.com/shashiranjanraj/filebot/internal/server"
)

const (
	pollTimeout = 60
	pollWorkers = 4
)

// filebot serve: run the web app and receive updates by webhook.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(bot.WebApp())
	},
}

// filebot poll: like serve, but pulls updates with getUpdates.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Start the HTTP server and receive updates by long polling",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := bot.Instance()
		b.EnablePolling(pollTimeout, pollWorkers)
		return run(b.App())
	},
}

func run(h server.Handle) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx, h, config.Addr(), server.Options{
		ShutdownTimeout: config.ShutdownTimeout(),
	})
}

// filebot route:list: print all registered routes.
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List all registered named routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos := bot.WebApp().RouteList()
		if len(infos) == 0 {
			fmt.Println("No named routes registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tNAME")
		fmt.Fprintln(w, "------\t----\t----")
		for _, ri := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ri.Method, ri.Path, ri.Name)
		}
		return w.Flush()
	},
}
