package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/embedpool/internal/monitor"
)

// serverURL returns server, or the configured listen address.
func (a *app) serverURL(server string) string {
	if server != "" {
		return server
	}
	return "http://" + a.cfg.Server.Addr()
}

func newHealthCmd(a *app) *cobra.Command {
	var (
		server  string
		timeout time.Duration
		output  string
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running embedpool server",
		Long: `Health queries /api/v1/status on a running server and prints the served
model and pool usage. The server defaults to the configured host and port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := monitor.NewClient(a.serverURL(server), timeout)
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if output != "text" {
				return writeOutput(cmd.OutOrStdout(), output, status)
			}
			cmd.Printf("Server Status: %s\n", status.Status)
			cmd.Printf("Server URL:    %s\n", client.BaseURL())
			cmd.Printf("Model:         %s (%s)\n", status.Model, status.Kind)
			cmd.Printf("Pool:          %d/%d instances, %d idle, %d in use\n",
				status.Pool.Size, status.Pool.MaxSize, status.Pool.Idle, status.Pool.InUse)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server URL (default http://<server.host>:<server.http_port>)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func newTopCmd(a *app) *cobra.Command {
	var (
		server   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live dashboard of a running server's pool",
		Long: `Top polls /api/v1/status and shows pool usage, acquire rate and wait
time as they change. Press q to quit and r to refresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := monitor.NewClient(a.serverURL(server), 5*time.Second)
			p := tea.NewProgram(monitor.NewModel(client, interval),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			_, err := p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server URL (default http://<server.host>:<server.http_port>)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 2*time.Second, "refresh interval")
	return cmd
}
