package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"loyalty-rewards-be/pkg/tour"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Work with tooltip registry files",
	}
	cmd.AddCommand(newRegistryValidateCmd())
	cmd.AddCommand(newRegistryListCmd())
	return cmd
}

func newRegistryValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <file>",
		Short:   "Check a registry YAML file",
		Example: "  tourctl registry validate config/tooltips.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistryFile(args[0])
			if err != nil {
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", args[0], err)
				return err
			}
			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "✓ %s is valid\n", args[0])
			for _, role := range registry.Roles() {
				fmt.Fprintf(out, "  %-10s %d tooltips\n", role, len(registry.ForRole(role)))
			}
			return nil
		},
	}
}

func newRegistryListCmd() *cobra.Command {
	var file string
	var role string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tooltips per role",
		Long:    "List the tooltips of a registry file, or of the built-in registry when --file is not given.",
		Example: `  tourctl registry list
  tourctl registry list --role installer
  tourctl registry list --file config/tooltips.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := tour.MustDefaultRegistry()
			if file != "" {
				var err error
				if registry, err = loadRegistryFile(file); err != nil {
					return err
				}
			}
			return runRegistryList(cmd.OutOrStdout(), registry, tour.Role(role), jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Registry YAML file")
	cmd.Flags().StringVarP(&role, "role", "r", "", "Only this role")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

type tooltipRow struct {
	Role      tour.Role      `json:"role"`
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Placement tour.Placement `json:"placement"`
}

func runRegistryList(w io.Writer, registry *tour.Registry, only tour.Role, jsonOutput bool) error {
	var rows []tooltipRow
	for _, role := range registry.Roles() {
		if only != "" && role != only {
			continue
		}
		table := registry.ForRole(role)
		for _, id := range sortedKeys(table) {
			def := table[id]
			rows = append(rows, tooltipRow{Role: role, ID: id, Title: def.Title, Placement: def.Placement})
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []tooltipRow{}
		}
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No tooltips.")
		return nil
	}
	heading := color.New(color.FgCyan, color.Bold)
	current := tour.Role("")
	for _, r := range rows {
		if r.Role != current {
			current = r.Role
			heading.Fprintf(w, "%s\n", current)
		}
		fmt.Fprintf(w, "  %-18s %-7s %s\n", r.ID, r.Placement, r.Title)
	}
	return nil
}

func loadRegistryFile(path string) (*tour.Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tour.LoadRegistry(f)
}
