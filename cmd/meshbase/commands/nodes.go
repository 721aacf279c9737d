package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"meshbase/internal/printer"
	"meshbase/internal/resolver"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes [node]",
	Short: "List known mesh nodes",
	Long: `List known mesh nodes.

Prints the node directory: every node id that has announced itself, its
current display name and the timestamp of its latest announcement. With an
argument, shows only the matching node; the argument may be a full node id,
an id prefix (leading "!" optional) or a display name prefix.

Examples:
  # All known nodes
  meshbase nodes

  # One node by id prefix
  meshbase nodes 1234

  # One node by name
  meshbase nodes "Base Camp"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNodes,
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}

func runNodes(cmd *cobra.Command, args []string) error {
	_, _, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	names, err := store.NodeNames(ctx)
	if err != nil {
		return err
	}
	seen, err := store.NodeSeen(ctx)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		id, err := resolver.ResolveNode(names, args[0])
		if err != nil {
			if resolver.IsAmbiguous(err) {
				ambig := err.(*resolver.AmbiguousError)
				return printer.Error(
					"ambiguous node reference",
					fmt.Sprintf("'%s' matches: %s", ambig.Ref, strings.Join(ambig.Matches, ", ")),
					[]string{"Use a longer prefix to uniquely identify the node"},
				)
			}
			if resolver.IsNotFound(err) {
				return printer.Error(
					"node not found",
					fmt.Sprintf("%v", err),
					[]string{"List known nodes:\n  meshbase nodes"},
				)
			}
			return err
		}
		printer.Printf("%-12s %-30s last seen %s\n", id, names[id], seen[id])
		return nil
	}

	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	printer.Header("Known nodes (%d)", len(ids))
	for _, id := range ids {
		printer.Printf("  %-12s %-30s last seen %s\n", id, names[id], seen[id])
	}
	return nil
}
