package auth

import (
	"errors"
	"testing"
)

func TestDefaultRoutesLookup(t *testing.T) {
	table := DefaultRoutes()
	cases := map[string]Role{
		"/admin":            RoleAdmin,
		"/admin/users":      RoleAdmin,
		"/management/audit": RoleManagement,
		"/support":          RoleSupport,
		"/dashboard/x/y":    RoleViewer,
	}
	for path, want := range cases {
		got, ok := table.Lookup(path)
		if !ok || got != want {
			t.Fatalf("Lookup(%q) = %s,%v want %s", path, got, ok, want)
		}
	}
	for _, path := range []string{"/", "/login", "/administrator", "/dashboards"} {
		if role, ok := table.Lookup(path); ok {
			t.Fatalf("expected %q to be public, got %s", path, role)
		}
	}
}

func TestRouteTableLongestPrefixWins(t *testing.T) {
	table, err := NewRouteTable(
		RouteRule{Prefix: "/support", Role: RoleSupport},
		RouteRule{Prefix: "/support/escalations/", Role: RoleManagement},
	)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if role, _ := table.Lookup("/support/escalations/42"); role != RoleManagement {
		t.Fatalf("expected MANAGEMENT, got %s", role)
	}
	if role, _ := table.Lookup("/support/tickets"); role != RoleSupport {
		t.Fatalf("expected SUPPORT, got %s", role)
	}
}

func TestRouteTableValidation(t *testing.T) {
	if _, err := NewRouteTable(RouteRule{Prefix: "/", Role: RoleAdmin}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected root prefix rejection, got %v", err)
	}
	if _, err := NewRouteTable(RouteRule{Prefix: "/x", Role: "ROOT"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected role rejection, got %v", err)
	}
	if _, err := NewRouteTable(RouteRule{Prefix: "/x", Role: RoleAdmin}, RouteRule{Prefix: "x/", Role: RoleViewer}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}
