package repofleet

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skaphos/repofleet/internal/cliio"
	"github.com/skaphos/repofleet/internal/config"
	"github.com/skaphos/repofleet/internal/forge"
)

func newServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List configured forge servers (tokens redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format := getFormatFlag(cmd)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			views := serverViews(cfg)
			if format != formatTable {
				return writeStructured(cmd, format, views)
			}
			if len(views) == 0 {
				infof(cmd, "no servers configured; using %s", cfg.ServerName(""))
				return nil
			}
			table := cliio.NewTable("NAME", "PROVIDER", "BASE_URL", "USER", "TOKEN", "AUTH", "ORGS", "DEFAULT")
			table.NoHeaders = getBoolFlag(cmd, "no-headers")
			for _, v := range views {
				table.Append(
					v.Name,
					v.Provider,
					v.BaseURL,
					dashIfEmpty(v.User),
					dashIfEmpty(v.Token),
					dashIfEmpty(v.Auth),
					dashIfEmpty(strings.Join(v.Organizations, ",")),
					strconv.FormatBool(v.Default),
				)
			}
			return table.Render(cmd.OutOrStdout())
		},
	}
	addFormatFlag(cmd)
	addNoHeadersFlag(cmd)
	return cmd
}

type serverView struct {
	Name          string   `json:"name"`
	Provider      string   `json:"provider"`
	BaseURL       string   `json:"base_url"`
	User          string   `json:"user,omitempty"`
	Token         string   `json:"token,omitempty"`
	Auth          string   `json:"auth,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Default       bool     `json:"default"`
}

func serverViews(cfg *config.Config) []serverView {
	selected := cfg.ServerName("")
	servers := cfg.ListServers()
	out := make([]serverView, 0, len(servers))
	for _, s := range servers {
		orgs := make([]string, 0, len(s.Organizations))
		for _, org := range s.Organizations {
			orgs = append(orgs, org.Name)
		}
		out = append(out, serverView{
			Name:          s.Name,
			Provider:      s.Provider,
			BaseURL:       forge.BaseURL(s),
			User:          s.User,
			Token:         s.Token,
			Auth:          s.Auth.Type,
			Organizations: orgs,
			Default:       s.Name == selected,
		})
	}
	return out
}
