package main

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/franz/asset-vault/internal/store"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/cobra"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage and inspect asset dependencies",
	Long: `Manage the dependency graph between assets.

An edge "A depends on B" means A requires B. Edges that would close a cycle
are rejected.`,
}

var depsAddCmd = &cobra.Command{
	Use:   "add <asset> <depends-on>",
	Short: "Record that an asset requires another",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepsAdd,
}

var depsRemoveCmd = &cobra.Command{
	Use:   "remove <asset> <depends-on>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepsRemove,
}

var depsListCmd = &cobra.Command{
	Use:   "list <asset>",
	Short: "List everything an asset requires, directly or transitively",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsList,
}

var depsDependentsCmd = &cobra.Command{
	Use:   "dependents <asset>",
	Short: "List every asset that requires the given one",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsDependents,
}

var depsGraphCmd = &cobra.Command{
	Use:   "graph <asset>",
	Short: "Print the dependency tree rooted at an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsGraph,
}

func init() {
	rootCmd.AddCommand(depsCmd)
	depsCmd.AddCommand(depsAddCmd, depsRemoveCmd, depsListCmd, depsDependentsCmd, depsGraphCmd)

	depsListCmd.Flags().Bool("direct", false, "Only list direct dependencies")
	depsGraphCmd.Flags().StringP("format", "f", "tree", "Output format: tree, dot, json or yaml")
}

func runDepsAdd(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.AddDependency(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	util.SuccessLog("%s now depends on %s", args[0], args[1])
	return nil
}

func runDepsRemove(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RemoveDependency(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	util.SuccessLog("Removed dependency %s -> %s", args[0], args[1])
	return nil
}

func runDepsList(cmd *cobra.Command, args []string) error {
	direct, _ := cmd.Flags().GetBool("direct")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var ids []string
	if direct {
		ids, err = db.GetDirectDependencies(cmd.Context(), args[0])
	} else {
		ids, err = db.GetAllDependencies(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}
	printIDs(cmd.OutOrStdout(), ids)
	return nil
}

func runDepsDependents(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := db.GetDependents(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printIDs(cmd.OutOrStdout(), ids)
	return nil
}

func printIDs(w io.Writer, ids []string) {
	if len(ids) == 0 {
		util.InfoLog("None")
		return
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
}

func runDepsGraph(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	graph, err := db.GetDependencyGraph(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "tree":
		_, err = io.WriteString(out, renderTree(graph))
		return err
	case "dot":
		_, err = io.WriteString(out, renderDOT(graph))
		return err
	default:
		return writeStructured(out, format, graph)
	}
}

// renderTree indents each node by its level. Nodes reached along several
// paths appear once per path.
func renderTree(g *store.DependencyGraph) string {
	// Ordering by path puts every child directly under its parent
	nodes := slices.Clone(g.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })

	var b strings.Builder
	for _, n := range nodes {
		if n.Level == 0 {
			b.WriteString(n.AssetID + "\n")
			continue
		}
		b.WriteString(strings.Repeat("  ", n.Level-1))
		b.WriteString("└─ " + n.AssetID + "\n")
	}
	return b.String()
}

// renderDOT emits a Graphviz digraph with each edge written once
func renderDOT(g *store.DependencyGraph) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", g.RootID)
	b.WriteString("  rankdir=LR;\n")
	fmt.Fprintf(&b, "  %q [shape=box];\n", g.RootID)

	seen := make(map[[2]string]bool)
	for _, n := range g.Nodes {
		if n.Parent == "" {
			continue
		}
		edge := [2]string{n.Parent, n.AssetID}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		fmt.Fprintf(&b, "  %q -> %q;\n", n.Parent, n.AssetID)
	}
	b.WriteString("}\n")
	return b.String()
}
