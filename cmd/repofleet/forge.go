// SPDX-License-Identifier: MIT
package repofleet

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skaphos/repofleet/internal/cliio"
	"github.com/skaphos/repofleet/internal/forge"
	"github.com/skaphos/repofleet/internal/snapshot"
)

func newForgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forge",
		Short: "Query the configured forge",
	}
	cmd.AddCommand(newForgeListCmd())
	return cmd
}

func newForgeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the repositories a forge account owns",
		Long: "Lists the repositories of the selected account. With --output the listing is " +
			"saved as a snapshot that plan and apply accept through --input.",
		Args: cobra.NoArgs,
		RunE: runForgeList,
	}
	addServerFlags(cmd)
	cmd.Flags().String("output", "", "save the listing as a snapshot file")
	cmd.Flags().Bool("merge", false, "with --output, merge into an existing snapshot instead of replacing it")
	addFormatFlag(cmd)
	addNoHeadersFlag(cmd)
	return cmd
}

func runForgeList(cmd *cobra.Command, _ []string) error {
	format := getFormatFlag(cmd)
	setColorOutputMode(cmd, format)

	cfg, server, err := resolveServer(cmd)
	if err != nil {
		return err
	}
	client, err := newForgeClient(server, forgeOptions(cfg)...)
	if err != nil {
		return err
	}
	source := forge.LiveSource{
		Client:  client,
		Server:  server,
		Options: forge.ListOptions{IncludeForks: getBoolFlag(cmd, "include-forks")},
	}
	snap, err := source.Snapshot(cmd.Context())
	if err != nil {
		return err
	}

	if output := getStringFlag(cmd, "output"); output != "" {
		if getBoolFlag(cmd, "merge") {
			snap, err = mergeSnapshot(output, snap)
			if err != nil {
				return err
			}
		}
		if err := snapshot.Save(snap, output); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		infof(cmd, "wrote %d repositories to %s", len(snap.Repos), output)
	}

	if format != formatTable {
		return writeStructured(cmd, format, snap)
	}
	table := cliio.NewTable("NAME", "OWNER", "PRIVATE", "FORK", "DEFAULT_BRANCH", "CLONE")
	table.NoHeaders = getBoolFlag(cmd, "no-headers")
	for _, repo := range snap.Repos {
		table.Append(
			repo.Name,
			dashIfEmpty(repo.Owner),
			strconv.FormatBool(repo.Private),
			strconv.FormatBool(repo.Fork),
			dashIfEmpty(repo.DefaultBranch),
			dashIfEmpty(repo.CloneSource()),
		)
	}
	return table.Render(cmd.OutOrStdout())
}

// mergeSnapshot upserts fresh into the snapshot stored at path. A missing
// file yields fresh unchanged.
func mergeSnapshot(path string, fresh *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	existing, err := snapshot.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return fresh, nil
	}
	if err != nil {
		return nil, err
	}
	for _, repo := range fresh.Repos {
		existing.Upsert(repo)
	}
	existing.Server = fresh.Server
	existing.Provider = fresh.Provider
	existing.BaseURL = fresh.BaseURL
	existing.User = fresh.User
	existing.GeneratedAt = fresh.GeneratedAt
	return existing, nil
}
