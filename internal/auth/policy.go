package auth

import (
	"net/http"
	"strings"
)

// Rule maps requests under a path prefix to the role each method needs.
// Methods missing from ByMethod fall back to Default.
type Rule struct {
	Prefix   string
	ByMethod map[string]Role
	Default  Role
}

func (r Rule) matches(path string) bool {
	trimmed := strings.TrimSuffix(r.Prefix, "/")
	return path == trimmed || strings.HasPrefix(path, trimmed+"/")
}

// Policy decides which requests skip auth and which role the rest need.
// The first matching rule wins; requests matching no rule are not guarded.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
	Rules          []Rule
}

// DeviceRules guards the device API: reads need viewer, writes operator, deletes admin.
func DeviceRules() []Rule {
	return []Rule{
		{
			Prefix: "/api/v1/devices",
			ByMethod: map[string]Role{
				http.MethodPost:   RoleOperator,
				http.MethodPut:    RoleOperator,
				http.MethodDelete: RoleAdmin,
			},
			Default: RoleViewer,
		},
		{Prefix: "/api/v1/exports", Default: RoleViewer},
		{
			Prefix: "/api",
			ByMethod: map[string]Role{
				http.MethodGet:     RoleViewer,
				http.MethodHead:    RoleViewer,
				http.MethodOptions: RoleViewer,
			},
			Default: RoleOperator,
		},
	}
}

// NewDefaultPolicy builds the device policy with the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes, Rules: DeviceRules()}
}

// IsExempt reports whether a request skips auth entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole returns the role a request needs and whether any rule applies.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.Rules {
		if !rule.matches(r.URL.Path) {
			continue
		}
		if role, ok := rule.ByMethod[r.Method]; ok {
			return role, true
		}
		return rule.Default, true
	}
	return "", false
}
