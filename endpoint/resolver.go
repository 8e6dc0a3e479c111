// Package endpoint derives collection and item URLs for a resource from the
// API root, the tenant scope and a per-resource path template.
package endpoint

import (
	"net/url"
	"strings"

	"github.com/goliatone/go-resource-cache/apierror"
)

// Template placeholders.
const (
	PlaceholderRoot      = "{root}"
	PlaceholderNamespace = "{namespace}"
	PlaceholderScope     = "{scope}"
	PlaceholderResource  = "{resource}"
)

const (
	// ConfigTemplate addresses master data under the "config" namespace.
	// Collection URLs keep the trailing slash.
	ConfigTemplate = "{root}/api/config/{scope}/{resource}/"
	// ScopedTemplate addresses transactional documents directly under the scope.
	ScopedTemplate = "{root}/api/{scope}/{resource}"
	// NamespacedTemplate places the resource under an arbitrary namespace.
	NamespacedTemplate = "{root}/api/{namespace}/{scope}/{resource}/"
)

// Route describes how one resource is addressed.
type Route struct {
	// Template is one of the *Template constants or a custom pattern using
	// the same placeholders. Empty means ConfigTemplate.
	Template string
	// Namespace fills {namespace}.
	Namespace string
}

// Resolver builds URLs relative to an API root. It performs no I/O.
type Resolver struct {
	root string
}

// NewResolver returns a resolver for root (e.g. "https://api.example.com").
func NewResolver(root string) *Resolver {
	return &Resolver{root: strings.TrimRight(root, "/")}
}

// Root returns the API root without a trailing slash.
func (r *Resolver) Root() string {
	return r.root
}

// Collection returns the collection URL of resource in scope.
func (r *Resolver) Collection(route Route, scope, resource string) (string, error) {
	return r.Resolve(route, scope, resource, "")
}

// Resolve returns the collection URL when id is empty and the item URL
// otherwise. Item URLs never carry a trailing slash.
func (r *Resolver) Resolve(route Route, scope, resource, id string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", apierror.Precondition("endpoint: scope is required")
	}
	if strings.TrimSpace(resource) == "" {
		return "", apierror.Precondition("endpoint: resource name is required")
	}

	template := route.Template
	if template == "" {
		template = ConfigTemplate
	}

	replacer := strings.NewReplacer(
		PlaceholderRoot, r.root,
		PlaceholderNamespace, url.PathEscape(route.Namespace),
		PlaceholderScope, url.PathEscape(scope),
		PlaceholderResource, escapeResource(resource),
	)
	base := replacer.Replace(template)

	if id == "" {
		return base, nil
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(id), nil
}

// escapeResource escapes each segment of a possibly nested resource name
// such as "purchase-orders/lines".
func escapeResource(resource string) string {
	parts := strings.Split(strings.Trim(resource, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
