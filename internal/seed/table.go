package seed

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/frahmantamala/teamboard/internal/catalog"
	"github.com/frahmantamala/teamboard/internal/core/common/validation"
	"github.com/frahmantamala/teamboard/internal/role"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yml
var defaultTable []byte

type Table struct {
	Permissions []PermissionSpec `yaml:"permissions"`
	Roles       []RoleSpec       `yaml:"roles"`
}

type PermissionSpec struct {
	Slug        string `yaml:"slug"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
}

type RoleSpec struct {
	Slug           string   `yaml:"slug"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	HierarchyLevel int      `yaml:"hierarchy_level"`
	GrantAll       bool     `yaml:"grant_all"`
	Permissions    []string `yaml:"permissions"`
}

// Default returns the table compiled into the binary.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// Load reads a table from path, or the compiled-in table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode seed table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks slugs, references and the strict ordering of system role levels.
func (t *Table) Validate() error {
	var errs []error

	known := make(map[string]struct{}, len(t.Permissions))
	for _, p := range t.Permissions {
		s, ok := catalog.Parse(p.Slug)
		if !ok || catalog.Format(s) != p.Slug {
			errs = append(errs, fmt.Errorf("permission %q: invalid slug", p.Slug))
			continue
		}
		if _, dup := known[p.Slug]; dup {
			errs = append(errs, fmt.Errorf("permission %q: duplicate", p.Slug))
		}
		known[p.Slug] = struct{}{}
	}

	levels := make(map[string]int, len(t.Roles))
	for _, r := range t.Roles {
		if !validation.IsSlug(r.Slug) {
			errs = append(errs, fmt.Errorf("role %q: invalid slug", r.Slug))
			continue
		}
		if _, dup := levels[r.Slug]; dup {
			errs = append(errs, fmt.Errorf("role %q: duplicate", r.Slug))
		}
		levels[r.Slug] = r.HierarchyLevel
		if r.HierarchyLevel < 0 {
			errs = append(errs, fmt.Errorf("role %q: negative hierarchy_level", r.Slug))
		}
		if r.GrantAll && len(r.Permissions) > 0 {
			errs = append(errs, fmt.Errorf("role %q: grant_all and permissions are exclusive", r.Slug))
		}
		for _, slug := range r.Permissions {
			if _, ok := known[slug]; !ok {
				errs = append(errs, fmt.Errorf("role %q: unknown permission %q", r.Slug, slug))
			}
		}
	}

	for i, slug := range role.SystemOrder {
		level, ok := levels[slug]
		if !ok {
			errs = append(errs, fmt.Errorf("system role %q missing", slug))
			continue
		}
		if i == 0 {
			continue
		}
		if above, ok := levels[role.SystemOrder[i-1]]; ok && above <= level {
			errs = append(errs, fmt.Errorf("system role %q: hierarchy_level %d must be below %q (%d)", slug, level, role.SystemOrder[i-1], above))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid seed table: %w", errors.Join(errs...))
	}
	return nil
}

// Grants lists the permission slugs bound to roleSlug, in table order.
func (t *Table) Grants(roleSlug string) []string {
	for _, r := range t.Roles {
		if r.Slug != roleSlug {
			continue
		}
		if !r.GrantAll {
			return append([]string(nil), r.Permissions...)
		}
		all := make([]string, 0, len(t.Permissions))
		for _, p := range t.Permissions {
			all = append(all, p.Slug)
		}
		return all
	}
	return nil
}
