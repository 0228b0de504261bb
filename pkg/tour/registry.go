package tour

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Role selects which tooltip table a user sees.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleInstaller Role = "installer"
)

// Placement is a rendering hint for the tooltip bubble.
type Placement string

const (
	PlacementTop    Placement = "top"
	PlacementRight  Placement = "right"
	PlacementBottom Placement = "bottom"
	PlacementLeft   Placement = "left"
)

func (p Placement) Valid() bool {
	switch p {
	case PlacementTop, PlacementRight, PlacementBottom, PlacementLeft:
		return true
	}
	return false
}

// TooltipDefinition is the displayable content of one tooltip.
type TooltipDefinition struct {
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	Placement Placement `json:"placement" yaml:"placement"`
}

// Registry is the read-only, role-partitioned tooltip table.
// Lookups never fall back to another role's table.
type Registry struct {
	tables map[Role]map[string]TooltipDefinition
}

// NewRegistry copies tables into a new Registry after validating every entry.
func NewRegistry(tables map[Role]map[string]TooltipDefinition) (*Registry, error) {
	r := &Registry{tables: make(map[Role]map[string]TooltipDefinition, len(tables))}
	for role, table := range tables {
		if role == "" {
			return nil, fmt.Errorf("registry: empty role name")
		}
		copied := make(map[string]TooltipDefinition, len(table))
		for id, def := range table {
			if id == "" {
				return nil, fmt.Errorf("registry: role %q has an empty tooltip id", role)
			}
			if def.Title == "" {
				return nil, fmt.Errorf("registry: %s/%s: title is required", role, id)
			}
			if def.Placement == "" {
				def.Placement = PlacementBottom
			}
			if !def.Placement.Valid() {
				return nil, fmt.Errorf("registry: %s/%s: invalid placement %q", role, id, def.Placement)
			}
			copied[id] = def
		}
		r.tables[role] = copied
	}
	return r, nil
}

type registryFile struct {
	Roles map[Role][]struct {
		ID                string `yaml:"id"`
		TooltipDefinition `yaml:",inline"`
	} `yaml:"roles"`
}

// LoadRegistry parses a YAML registry document:
//
//	roles:
//	  installer:
//	    - id: scanner-button
//	      title: Scan a product
//	      content: ...
//	      placement: bottom
func LoadRegistry(r io.Reader) (*Registry, error) {
	var file registryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("registry: decode yaml: %w", err)
	}

	tables := make(map[Role]map[string]TooltipDefinition, len(file.Roles))
	for role, entries := range file.Roles {
		table := make(map[string]TooltipDefinition, len(entries))
		for _, e := range entries {
			if _, dup := table[e.ID]; dup {
				return nil, fmt.Errorf("registry: %s/%s: duplicate id", role, e.ID)
			}
			table[e.ID] = e.TooltipDefinition
		}
		tables[role] = table
	}
	return NewRegistry(tables)
}

// Lookup returns the definition of id for role.
func (r *Registry) Lookup(role Role, id string) (TooltipDefinition, bool) {
	if r == nil {
		return TooltipDefinition{}, false
	}
	def, ok := r.tables[role][id]
	return def, ok
}

// ForRole returns a copy of the table for role, empty when the role is unknown.
func (r *Registry) ForRole(role Role) map[string]TooltipDefinition {
	out := make(map[string]TooltipDefinition)
	if r == nil {
		return out
	}
	for id, def := range r.tables[role] {
		out[id] = def
	}
	return out
}

// Roles lists the configured roles in lexical order.
func (r *Registry) Roles() []Role {
	if r == nil {
		return nil
	}
	roles := make([]Role, 0, len(r.tables))
	for role := range r.tables {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
