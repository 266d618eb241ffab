package rbac

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle is a declarative RBAC seed: permissions, roles, labels and policies.
type Bundle struct {
	Permissions []BundlePermission `yaml:"permissions"`
	Roles       []BundleRole       `yaml:"roles"`
	Labels      []BundleLabel      `yaml:"labels"`
	Policies    []BundlePolicy     `yaml:"policies"`
}

type BundlePermission struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type BundleRole struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type BundleLabel struct {
	Name        string `yaml:"name"`
	Rank        int    `yaml:"rank"`
	Description string `yaml:"description"`
}

type BundlePolicy struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	ResourceType string          `yaml:"resource_type"`
	Rules        map[string]Rule `yaml:"rules"`
}

// LoadBundle decodes and validates a YAML bundle.
func LoadBundle(r io.Reader) (Bundle, error) {
	var b Bundle
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("rbac: decode bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// Validate checks cross references inside the bundle.
func (b Bundle) Validate() error {
	perms := make(map[string]struct{}, len(b.Permissions))
	for _, p := range b.Permissions {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("rbac: bundle: permission name required")
		}
		perms[NormalizeName(p.Name)] = struct{}{}
	}
	roles := make(map[string]struct{}, len(b.Roles))
	for _, role := range b.Roles {
		if strings.TrimSpace(role.Name) == "" {
			return fmt.Errorf("rbac: bundle: role name required")
		}
		key := NormalizeName(role.Name)
		if _, dup := roles[key]; dup {
			return fmt.Errorf("rbac: bundle: duplicate role %q", role.Name)
		}
		roles[key] = struct{}{}
		if _, err := ParseRoleKind(role.Kind); err != nil {
			return fmt.Errorf("rbac: bundle: role %q: %w", role.Name, err)
		}
		for _, name := range role.Permissions {
			if _, ok := perms[NormalizeName(name)]; !ok {
				return fmt.Errorf("rbac: bundle: role %q references unknown permission %q", role.Name, name)
			}
		}
	}
	labels := make(map[string]struct{}, len(b.Labels))
	for _, l := range b.Labels {
		labels[l.Name] = struct{}{}
	}
	for _, p := range b.Policies {
		if p.Name == "" || p.ResourceType == "" {
			return fmt.Errorf("rbac: bundle: policy name and resource_type required")
		}
		for key, rule := range p.Rules {
			if rule.MinLabel == "" {
				continue
			}
			if _, ok := labels[rule.MinLabel]; !ok {
				return fmt.Errorf("rbac: bundle: policy %q rule %q references unknown label %q", p.Name, key, rule.MinLabel)
			}
		}
	}
	return nil
}

// ApplyBundle upserts every bundle entry. It is idempotent and bypasses actor checks,
// so it is only reachable from the seed command.
func (s *Service) ApplyBundle(ctx context.Context, b Bundle) error {
	permIDs := make(map[string]int64, len(b.Permissions))
	for _, p := range b.Permissions {
		perm, err := s.repo.EnsurePermission(ctx, strings.TrimSpace(p.Name), p.Description)
		if err != nil {
			return err
		}
		permIDs[NormalizeName(p.Name)] = perm.ID
	}
	for _, br := range b.Roles {
		kind, err := ParseRoleKind(br.Kind)
		if err != nil {
			return err
		}
		role, err := s.repo.EnsureRole(ctx, Role{Name: strings.TrimSpace(br.Name), Kind: kind, Description: br.Description})
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(br.Permissions))
		for _, name := range br.Permissions {
			ids = append(ids, permIDs[NormalizeName(name)])
		}
		if err := s.repo.SetRolePermissions(ctx, role.ID, dedupe(ids)); err != nil {
			return err
		}
	}
	for _, l := range b.Labels {
		if _, err := s.repo.UpsertLabel(ctx, SecurityLabel{Name: l.Name, Rank: l.Rank, Description: l.Description}); err != nil {
			return err
		}
	}
	for _, p := range b.Policies {
		if _, err := s.repo.UpsertPolicy(ctx, AccessPolicy{Name: p.Name, Description: p.Description, ResourceType: p.ResourceType, Rules: p.Rules}); err != nil {
			return err
		}
	}
	s.logger.Info("rbac bundle applied",
		slog.Int("permissions", len(b.Permissions)),
		slog.Int("roles", len(b.Roles)),
		slog.Int("labels", len(b.Labels)),
		slog.Int("policies", len(b.Policies)),
	)
	return nil
}
