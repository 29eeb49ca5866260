package auth

import (
	"fmt"
	"sort"
	"strings"
)

// RouteRule demands at least Role for every path under Prefix.
type RouteRule struct {
	Prefix string
	Role   Role
}

// RouteTable maps page paths to their minimum role. The longest matching
// prefix wins; paths outside every rule are public.
type RouteTable struct {
	rules []RouteRule
}

// DefaultRoutes protects the back-office sections of the portal.
func DefaultRoutes() *RouteTable {
	t, _ := NewRouteTable(
		RouteRule{Prefix: "/admin", Role: RoleAdmin},
		RouteRule{Prefix: "/management", Role: RoleManagement},
		RouteRule{Prefix: "/support", Role: RoleSupport},
		RouteRule{Prefix: "/dashboard", Role: RoleViewer},
	)
	return t
}

// NewRouteTable validates and orders rules.
func NewRouteTable(rules ...RouteRule) (*RouteTable, error) {
	seen := make(map[string]struct{}, len(rules))
	out := make([]RouteRule, 0, len(rules))
	for _, rule := range rules {
		prefix := "/" + strings.Trim(strings.TrimSpace(rule.Prefix), "/")
		if prefix == "/" {
			return nil, fmt.Errorf("%w: route prefix must not be empty", ErrInvalidInput)
		}
		if !rule.Role.Valid() {
			return nil, fmt.Errorf("%w: route %s has unsupported role %q", ErrInvalidInput, prefix, rule.Role)
		}
		if _, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("%w: duplicate route prefix %s", ErrInvalidInput, prefix)
		}
		seen[prefix] = struct{}{}
		out = append(out, RouteRule{Prefix: prefix, Role: rule.Role})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Prefix) > len(out[j].Prefix)
	})
	return &RouteTable{rules: out}, nil
}

// Lookup returns the minimum role for path, or false when path is public.
func (t *RouteTable) Lookup(path string) (Role, bool) {
	if t == nil {
		return "", false
	}
	if path == "" {
		path = "/"
	}
	for _, rule := range t.rules {
		if path == rule.Prefix || strings.HasPrefix(path, rule.Prefix+"/") {
			return rule.Role, true
		}
	}
	return "", false
}

// Rules returns the rules in match order.
func (t *RouteTable) Rules() []RouteRule {
	out := make([]RouteRule, len(t.rules))
	copy(out, t.rules)
	return out
}
