package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/quickbars-hub/internal/discovery"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/config"
)

func discoverCmd() *cobra.Command {
	var (
		timeout time.Duration
		service string
		domain  string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan the local network for QuickBars TV apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scanner := discovery.NewScanner(discovery.NewZeroconfBrowser(), discovery.FromConfig(config.DiscoveryConfig{
				Enabled:     true,
				Service:     service,
				Domain:      domain,
				ScanTimeout: timeout,
			}))

			fmt.Fprintf(cmd.ErrOrStderr(), "Browsing %s.%s for %s...\n", service, domain, timeout)
			found, err := scanner.Scan(cmd.Context())
			if err != nil {
				return fmt.Errorf("scanning: %w", err)
			}
			return printCandidates(cmd.OutOrStdout(), found)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to browse")
	cmd.Flags().StringVar(&service, "service", "_quickbars._tcp", "mDNS service type")
	cmd.Flags().StringVar(&domain, "domain", "local.", "mDNS domain")
	return cmd
}

func printCandidates(out io.Writer, found []discovery.Candidate) error {
	if len(found) == 0 {
		_, err := fmt.Fprintln(out, "No QuickBars devices found.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tAPP VERSION\tADDRESSES")
	for _, c := range found {
		id := c.DeviceID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, c.Name, c.Address(), orDash(c.AppVersion), strings.Join(c.Addresses, ","))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
