package rbac

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// RoleKind is the closed set of role kinds the core reasons about.
// Admin-defined roles are RoleCustom and only matter through their permissions.
type RoleKind string

const (
	RoleAdmin   RoleKind = "admin"
	RoleOfficer RoleKind = "officer"
	RoleVoter   RoleKind = "voter"
	RoleCustom  RoleKind = "custom"
)

// ParseRoleKind validates a stored or submitted kind. Empty means custom.
func ParseRoleKind(s string) (RoleKind, error) {
	switch k := RoleKind(strings.ToLower(strings.TrimSpace(s))); k {
	case RoleAdmin, RoleOfficer, RoleVoter, RoleCustom:
		return k, nil
	case "":
		return RoleCustom, nil
	default:
		return "", fmt.Errorf("rbac: unknown role kind %q", s)
	}
}

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Kind        RoleKind  `json:"kind"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability. Its name is the action string.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// EntryKind tags an assignment ledger entry.
type EntryKind string

const (
	EntryGrant  EntryKind = "grant"
	EntryRevoke EntryKind = "revoke"
)

// Assignment is one append-only ledger entry binding a user to a role.
type Assignment struct {
	ID     int64     `json:"id"`
	RoleID int64     `json:"role_id"`
	UserID int64     `json:"user_id"`
	Kind   EntryKind `json:"kind"`
	At     time.Time `json:"at"`
	By     int64     `json:"by"`
}

// SecurityLabel is one step of the clearance scale; higher rank is more sensitive.
type SecurityLabel struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Rank        int    `json:"rank"`
	Description string `json:"description,omitempty"`
}

// AccessPolicy binds attribute rules to a resource type.
type AccessPolicy struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	ResourceType string          `json:"resource_type"`
	Rules        map[string]Rule `json:"rules"`
}

// Rule is a single attribute requirement. Exactly one field is set.
type Rule struct {
	Equals   string   `json:"equals,omitempty" yaml:"equals,omitempty"`
	In       []string `json:"in,omitempty" yaml:"in,omitempty"`
	MinLabel string   `json:"min_label,omitempty" yaml:"min_label,omitempty"`
}

type ruleFields struct {
	Equals   string   `json:"equals" yaml:"equals"`
	In       []string `json:"in" yaml:"in"`
	MinLabel string   `json:"min_label" yaml:"min_label"`
}

// UnmarshalJSON accepts either a bare string (equality) or a rule object.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var scalar string
	if err := json.Unmarshal(data, &scalar); err == nil {
		*r = Rule{Equals: scalar}
		return r.validate()
	}
	var fields ruleFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("rbac: rule: %w", err)
	}
	*r = Rule(fields)
	return r.validate()
}

// MarshalJSON writes equality rules back as bare strings.
func (r Rule) MarshalJSON() ([]byte, error) {
	if r.Equals != "" && len(r.In) == 0 && r.MinLabel == "" {
		return json.Marshal(r.Equals)
	}
	return json.Marshal(ruleFields(r))
}

// UnmarshalYAML mirrors UnmarshalJSON for bundle files.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = Rule{Equals: node.Value}
		return r.validate()
	}
	var fields ruleFields
	if err := node.Decode(&fields); err != nil {
		return fmt.Errorf("rbac: rule: %w", err)
	}
	*r = Rule(fields)
	return r.validate()
}

func (r Rule) validate() error {
	set := 0
	if r.Equals != "" {
		set++
	}
	if len(r.In) > 0 {
		set++
	}
	if r.MinLabel != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("rbac: rule must set exactly one of equals, in, min_label")
	}
	return nil
}

// NormalizeName folds a role or permission name for uniqueness comparisons.
func NormalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
