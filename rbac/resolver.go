package rbac

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/authgate/authgate/models"
)

// Wildcard grants every permission when held directly.
const Wildcard = "*"

// AdminRole implicitly satisfies all permission checks.
const AdminRole = "admin"

// Role maps a role name to its permission set and an optional single parent.
type Role struct {
	Name         string   `json:"name"`
	Permissions  []string `json:"permissions"`
	InheritsFrom string   `json:"inherits_from,omitempty"`
}

// Resolver resolves principals' roles into effective permission sets.
// The role graph is immutable after construction; Reload swaps it atomically.
type Resolver struct {
	mu     sync.RWMutex
	roles  map[string]Role
	logger *zap.Logger
}

// NewResolver builds a resolver from the given role graph. Any inheritance
// cycle is a configuration error: the resolver is not built and the caller
// must treat startup as failed (fail-closed, not a crash at request time).
func NewResolver(roles []Role, logger *zap.Logger) (*Resolver, error) {
	graph, err := buildGraph(roles)
	if err != nil {
		return nil, err
	}
	return &Resolver{roles: graph, logger: logger}, nil
}

// NewResolverFromFile builds a resolver from a JSON role-graph file, or from
// the built-in defaults when path is empty.
func NewResolverFromFile(path string, logger *zap.Logger) (*Resolver, error) {
	if path == "" {
		return NewResolver(DefaultRoles(), logger)
	}
	roles, err := loadRolesFile(path)
	if err != nil {
		return nil, err
	}
	return NewResolver(roles, logger)
}

// Reload replaces the role graph. Recomputation happens only here, never
// implicitly during permission checks.
func (r *Resolver) Reload(roles []Role) error {
	graph, err := buildGraph(roles)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.roles = graph
	r.mu.Unlock()
	r.logger.Info("role graph reloaded", zap.Int("roles", len(graph)))
	return nil
}

// EffectivePermissions returns the union, over all of the principal's roles,
// of that role's permissions plus all ancestors' permissions. Resolution is
// memoized within the call and guarded against cycles: a cycle degrades to a
// logged warning rather than infinite recursion.
func (r *Resolver) EffectivePermissions(p *models.Principal) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	for _, perm := range p.Permissions {
		set[perm] = struct{}{}
	}

	memo := make(map[string][]string)
	for _, role := range p.Roles {
		for _, perm := range r.resolveRole(role, memo, make(map[string]bool)) {
			set[perm] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// HasPermission reports whether the principal satisfies the permission check.
// True when the permission is granted exactly, a wildcard grant covers it, or
// the principal holds the administrative role. Unknown role names contribute
// no permissions.
func (r *Resolver) HasPermission(p *models.Principal, permission string) bool {
	if p == nil {
		return false
	}
	if p.HasRole(AdminRole) {
		return true
	}
	for _, grant := range r.EffectivePermissions(p) {
		if Matches(grant, permission) {
			return true
		}
	}
	return false
}

// Matches reports whether a granted permission pattern satisfies a concrete
// permission check. Permissions use colon-joined segments
// (service[:resource][:action]); a grant whose final segment is "*" matches
// any remainder, and a bare "*" matches everything.
func Matches(grant, permission string) bool {
	if grant == Wildcard {
		return true
	}
	if grant == permission {
		return true
	}
	if strings.HasSuffix(grant, ":"+Wildcard) {
		prefix := strings.TrimSuffix(grant, Wildcard)
		return strings.HasPrefix(permission, prefix)
	}
	return false
}

// resolveRole walks the inheritance chain for one role. Callers hold r.mu.
func (r *Resolver) resolveRole(name string, memo map[string][]string, visited map[string]bool) []string {
	if perms, ok := memo[name]; ok {
		return perms
	}
	if visited[name] {
		r.logger.Warn("role inheritance cycle detected", zap.String("role", name))
		return nil
	}
	visited[name] = true

	role, ok := r.roles[name]
	if !ok {
		r.logger.Warn("unknown role contributes no permissions", zap.String("role", name))
		memo[name] = nil
		return nil
	}

	perms := append([]string(nil), role.Permissions...)
	if role.InheritsFrom != "" {
		perms = append(perms, r.resolveRole(role.InheritsFrom, memo, visited)...)
	}
	memo[name] = perms
	return perms
}

// buildGraph indexes the roles and rejects inheritance cycles up front.
func buildGraph(roles []Role) (map[string]Role, error) {
	graph := make(map[string]Role, len(roles))
	for _, role := range roles {
		if role.Name == "" {
			return nil, fmt.Errorf("role with empty name in role graph")
		}
		if _, dup := graph[role.Name]; dup {
			return nil, fmt.Errorf("duplicate role %q in role graph", role.Name)
		}
		graph[role.Name] = role
	}

	for name := range graph {
		seen := map[string]bool{name: true}
		for parent := graph[name].InheritsFrom; parent != ""; {
			if seen[parent] {
				return nil, fmt.Errorf("role inheritance cycle through %q", parent)
			}
			seen[parent] = true
			next, ok := graph[parent]
			if !ok {
				// Unknown parents resolve to nothing at runtime; the chain
				// just ends here.
				break
			}
			parent = next.InheritsFrom
		}
	}

	return graph, nil
}

func loadRolesFile(path string) ([]Role, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}
	var roles []Role
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}
	return roles, nil
}

// DefaultRoles returns the built-in role graph.
func DefaultRoles() []Role {
	return []Role{
		{Name: "viewer", Permissions: []string{"data:read", "extension:read"}},
		{Name: "user", Permissions: []string{"data:write", "extension:write"}, InheritsFrom: "viewer"},
		{Name: "operator", Permissions: []string{"extension:configure", "extension:background_tasks"}, InheritsFrom: "user"},
		{Name: AdminRole, Permissions: []string{Wildcard}, InheritsFrom: "operator"},
		{Name: "service", Permissions: []string{"extension:background_tasks"}},
	}
}
