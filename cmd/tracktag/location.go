package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tracktag/internal/lifecycle"
)

// locationCmd represents the location command
var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "Check whether location services are on",
	Long: `Query the platform's location service switch.

Platforms that gate BLE scanning on location need it on for results to be
delivered. On desktop backends the state comes from desktop.location_services
in the config file.`,
	Example: `  tracktag location --simulate
  tracktag location --config tracktag.yaml`,
	RunE: runLocation,
}

func runLocation(cmd *cobra.Command, args []string) error {
	env, err := newRuntime(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	mgr, err := env.newManager(cmd.Context(), false, nil)
	if err != nil {
		env.close(nil)
		return err
	}
	defer env.close(mgr)

	on, err := mgr.CheckLocationServices(cmd.Context())
	if err != nil {
		return lifecycle.ChannelError(err)
	}

	state := color.New(color.FgRed).Sprint("off")
	if on {
		state = color.New(color.FgGreen).Sprint("on")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Location services: %s\n", state)
	return nil
}
