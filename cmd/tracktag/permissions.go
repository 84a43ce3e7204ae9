package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tracktag/internal/platform"
	"github.com/srg/tracktag/internal/policy"
)

// permissionsCmd represents the permissions command
var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Show the permissions and enable policy for a platform version",
	Long: `Show which runtime permissions scanning requires and how Bluetooth is
enabled for a platform API level.

Up to API level 30 scanning is gated by fine location and Bluetooth can be
turned on programmatically. From 31 on, scanning needs BLUETOOTH_SCAN and
BLUETOOTH_CONNECT, and turning Bluetooth on needs the user. Background
scanning additionally needs FOREGROUND_SERVICE_LOCATION from 31 on.

With --status the current grant state of each permission is queried from the
configured platform.`,
	Example: `  tracktag permissions --api-level 30
  tracktag permissions --background
  tracktag permissions --status --simulate`,
	RunE: runPermissions,
}

var (
	permissionsAPILevel   int
	permissionsBackground bool
	permissionsStatus     bool
)

func init() {
	permissionsCmd.Flags().IntVar(&permissionsAPILevel, "api-level", 0, "Platform API level (default from config, 34)")
	permissionsCmd.Flags().BoolVarP(&permissionsBackground, "background", "b", false, "Include background-only permissions")
	permissionsCmd.Flags().BoolVar(&permissionsStatus, "status", false, "Query the platform for the grant state of each permission")
}

func runPermissions(cmd *cobra.Command, args []string) error {
	if permissionsAPILevel < 0 {
		return fmt.Errorf("invalid API level %d: must be > 0", permissionsAPILevel)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	version := cfg.Version()
	if permissionsAPILevel > 0 {
		version = policy.Version(permissionsAPILevel)
	}

	var table platform.PermissionTable
	if permissionsStatus {
		env, err := newRuntime(cmd, logrus.PanicLevel)
		if err != nil {
			return err
		}
		defer env.close(nil)
		table = env.platform.Permissions()
	}

	return printPolicy(cmd.OutOrStdout(), policy.For(version), permissionsBackground, table)
}

// printPolicy writes the policy summary. table may be nil.
func printPolicy(out io.Writer, pol policy.Policy, background bool, table platform.PermissionTable) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "API level:\t%d\n", int(pol.Version))
	fmt.Fprintf(w, "Permission model:\t%s\n", pol.Permissions)
	fmt.Fprintf(w, "Enable mode:\t%s\n", pol.Enable)
	fmt.Fprintf(w, "Notification channels:\t%s\n", yesNo(pol.NotificationChannels))
	if pol.ForegroundStartDeadline > 0 {
		fmt.Fprintf(w, "Foreground start deadline:\t%s\n", pol.ForegroundStartDeadline)
	} else {
		fmt.Fprintf(w, "Foreground start deadline:\tnone\n")
	}
	fmt.Fprintf(w, "Background:\t%s\n", yesNo(background))
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nRequired permissions:")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, id := range pol.RequiredPermissions(background) {
		if table != nil {
			fmt.Fprintf(w, "  %s\t%s\n", id, table.Status(id))
		} else {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
