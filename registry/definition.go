// Package registry holds the per-resource definitions that configure the
// generic resource client: where a resource lives, how long its reads stay
// fresh, how reads are retried and which other resources a write affects.
package registry

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-resource-cache/endpoint"
)

// Template aliases accepted in definitions.
const (
	TemplateConfig     = "config"
	TemplateScoped     = "scoped"
	TemplateNamespaced = "namespaced"
)

// Defaults applied to definitions that leave the field unset.
const (
	DefaultStaleTime  = 5 * time.Minute
	DefaultMaxRetries = 1
	DefaultRetryDelay = time.Second
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*(/[a-z0-9][a-z0-9-]*)*$`)

// RetryPolicy bounds retries of failed reads. Writes are never retried.
type RetryPolicy struct {
	MaxRetries int           `yaml:"maxRetries"`
	Delay      time.Duration `yaml:"delay"`
}

// DefaultRetryPolicy retries once after one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

// Validate implements validation.Validatable.
func (p RetryPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&p.Delay, validation.Min(time.Duration(0)), validation.Max(time.Minute)),
	)
}

// Definition describes one resource.
type Definition struct {
	// Name is the resource path segment, e.g. "departments" or "purchase-orders/lines".
	Name string `yaml:"name"`
	// Template is an alias (config, scoped, namespaced) or a custom URL
	// pattern with {root}, {namespace}, {scope} and {resource}. Empty means config.
	Template  string `yaml:"template,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
	// StaleTime is how long a cached read is served without a network call.
	StaleTime time.Duration `yaml:"staleTime,omitempty"`
	// Retry overrides the default read retry policy. A policy with
	// MaxRetries 0 disables retries.
	Retry *RetryPolicy `yaml:"retry,omitempty"`
	// DependsOn lists resources whose writes also invalidate this resource,
	// e.g. inventory depends on goods-received-notes.
	DependsOn []string `yaml:"dependsOn,omitempty"`
}

// Validate implements validation.Validatable.
func (d Definition) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required, validation.Match(namePattern)),
		validation.Field(&d.Template, validation.By(validTemplate)),
		validation.Field(&d.Namespace, validation.When(d.Template == TemplateNamespaced, validation.Required)),
		validation.Field(&d.StaleTime, validation.Min(time.Duration(0))),
		validation.Field(&d.Retry),
		validation.Field(&d.DependsOn, validation.Each(validation.Required, validation.Match(namePattern))),
	)
}

func validTemplate(value any) error {
	tpl, _ := value.(string)
	switch tpl {
	case "", TemplateConfig, TemplateScoped, TemplateNamespaced:
		return nil
	}
	if !strings.Contains(tpl, endpoint.PlaceholderScope) || !strings.Contains(tpl, endpoint.PlaceholderResource) {
		return validation.NewError("validation_template_placeholders",
			"must contain {scope} and {resource}")
	}
	return nil
}

// Route returns the endpoint route for the definition.
func (d Definition) Route() endpoint.Route {
	route := endpoint.Route{Namespace: d.Namespace}
	switch d.Template {
	case "", TemplateConfig:
		route.Template = endpoint.ConfigTemplate
	case TemplateScoped:
		route.Template = endpoint.ScopedTemplate
	case TemplateNamespaced:
		route.Template = endpoint.NamespacedTemplate
	default:
		route.Template = d.Template
	}
	return route
}

// Stale returns the effective staleness window.
func (d Definition) Stale() time.Duration {
	if d.StaleTime <= 0 {
		return DefaultStaleTime
	}
	return d.StaleTime
}

// RetryPolicy returns the effective read retry policy.
func (d Definition) RetryPolicy() RetryPolicy {
	if d.Retry == nil {
		return DefaultRetryPolicy()
	}
	return *d.Retry
}
