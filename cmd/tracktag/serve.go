package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tracktag/internal/bridge"
	"github.com/srg/tracktag/internal/bridge/wsbridge"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scan lifecycle to a host over HTTP and websocket",
	Long: `Run the scan lifecycle manager and expose it on a host bridge.

Methods are called with POST /channels/<channel>/methods/<method> or as call
envelopes on the websocket at /channels/<channel>/events, which also streams
every lifecycle event. Buffered scan results are polled from /scan/results.

Methods: requestEnableBluetooth, checkLocationServices, startScan, stopScan, getState.`,
	Example: `  tracktag serve --simulate
  tracktag serve --listen 0.0.0.0:8765 --background
  curl -X POST localhost:8765/channels/flutter_bluetooth/methods/requestEnableBluetooth`,
	RunE: runServe,
}

var (
	serveListen     string
	serveChannel    string
	serveBackground bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (default from config, 127.0.0.1:8765)")
	serveCmd.Flags().StringVar(&serveChannel, "channel", "", "Channel name (default from config, flutter_bluetooth)")
	serveCmd.Flags().BoolVarP(&serveBackground, "background", "b", false, "Scan under a foreground notification")
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := newRuntime(cmd, logrus.InfoLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	if serveListen != "" {
		env.cfg.Bridge.Listen = serveListen
	}
	if serveChannel != "" {
		env.cfg.Bridge.Channel = serveChannel
	}
	if serveBackground {
		env.cfg.Background.Enabled = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, env, cmd.OutOrStdout())
}

// serve runs the manager and the bridge server until ctx is cancelled.
func serve(ctx context.Context, env *runtimeEnv, out io.Writer) error {
	cfg := env.cfg
	events := bridge.NewEventChannel(cfg.Bridge.Channel)

	// The manager outlives ctx so shutdown can still run on its home goroutine.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	mgr, err := env.newManager(runCtx, cfg.Background.Enabled, events)
	if err != nil {
		env.close(nil)
		return err
	}

	methods := bridge.NewMethodChannel(cfg.Bridge.Channel, env.logger)
	mgr.Bind(methods)

	srv := wsbridge.New(wsbridge.Options{QueueSize: cfg.Bridge.QueueSize}, mgr.History(), env.logger)
	srv.Register(methods, events)

	httpServer := &http.Server{
		Addr:              cfg.Bridge.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(out, "Serving channel %q on http://%s (platform %s, API level %d)\n",
		cfg.Bridge.Channel, cfg.Bridge.Listen, env.platform.Name(), int(env.platform.Version()))

	serveErr := wsbridge.RunServer(ctx, httpServer, env.logger)

	env.close(mgr)
	// Closing the event channel ends the websocket sessions Shutdown left behind.
	events.Close()
	srv.Wait()

	return serveErr
}
