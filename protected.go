package tautan

import (
	"net/http"
	"strings"
)

// ProtectedRoute marks paths that require an access token. An empty Methods
// list protects every method.
type ProtectedRoute struct {
	Pattern string
	Methods []string
}

var mutatingMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// DefaultProtectedRoutes returns the routes that require authentication.
func DefaultProtectedRoutes() []ProtectedRoute {
	return []ProtectedRoute{
		{Pattern: "/users/me"},
		{Pattern: "/profile"},
		{Pattern: "/circles"},
		{Pattern: "/notifications"},
		{Pattern: "/messages"},
		{Pattern: "/conversations"},
		{Pattern: "/reviews", Methods: mutatingMethods},
		{Pattern: "/entities", Methods: mutatingMethods},
	}
}

// DefaultProtectedCarveOuts returns path fragments that are never protected.
func DefaultProtectedCarveOuts() []string {
	return []string{"/debug"}
}

func (r ProtectedRoute) matches(method, path string) bool {
	if r.Pattern == "" || !strings.Contains(path, r.Pattern) {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// routeGate decides whether a request needs a token.
type routeGate struct {
	routes    []ProtectedRoute
	carveOuts []string
}

func (g *routeGate) isProtected(method, path string) bool {
	if g == nil {
		return false
	}
	for _, c := range g.carveOuts {
		if c != "" && strings.Contains(path, c) {
			return false
		}
	}
	for _, r := range g.routes {
		if r.matches(method, path) {
			return true
		}
	}
	return false
}
