package query

import (
	"fmt"
)

// Option configures ParseAll.
type Option func(*parseOptions)

type parseOptions struct {
	templateCheck func(template string) error
}

// WithTemplateCheck runs check against every template at build time.
// A failing check rejects the definition with a ConfigError on the template field.
func WithTemplateCheck(check func(template string) error) Option {
	return func(o *parseOptions) {
		o.templateCheck = check
	}
}

// Registry holds the query items that passed validation.
// It is built once at startup and never modified; it is safe for concurrent reads.
type Registry struct {
	items []Item
}

// ParseAll parses every definition, isolating failures.
//
// Definitions are processed in the order given. A rejected definition is
// reported in the returned error slice and excluded; it never prevents the
// others from registering. An API item whose endpoint is already taken by an
// earlier item is rejected with ErrDuplicateEndpoint.
//
// Returns:
//   - *Registry: the accepted items (never nil)
//   - []error: one *ConfigError per rejected definition
func ParseAll(defs []Definition, opts ...Option) (*Registry, []error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	reg := &Registry{items: make([]Item, 0, len(defs))}
	endpoints := make(map[string]string)
	var errs []error

	for _, def := range defs {
		item, err := Parse(def)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if o.templateCheck != nil {
			if checkErr := o.templateCheck(item.Template); checkErr != nil {
				errs = append(errs, &ConfigError{
					Source: def.Source,
					Field:  FieldTemplate,
					Reason: "template rejected",
					Err:    checkErr,
				})
				continue
			}
		}

		if item.Mode == ModeAPI {
			if owner, taken := endpoints[item.API.Endpoint]; taken {
				errs = append(errs, &ConfigError{
					Source: def.Source,
					Field:  FieldEndpoint,
					Reason: fmt.Sprintf("endpoint %s already registered by %q", item.API.Endpoint, owner),
					Err:    ErrDuplicateEndpoint,
				})
				continue
			}
			endpoints[item.API.Endpoint] = def.Source
		}

		reg.items = append(reg.items, item)
	}

	return reg, errs
}

// Items returns a copy of all accepted items in definition order.
func (r *Registry) Items() []Item {
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

// APIItems returns the API-mode items in definition order.
func (r *Registry) APIItems() []Item {
	return r.byMode(ModeAPI)
}

// TelemetryItems returns the telemetry-mode items in definition order.
func (r *Registry) TelemetryItems() []Item {
	return r.byMode(ModeTelemetry)
}

// Len returns the number of accepted items.
func (r *Registry) Len() int {
	return len(r.items)
}

func (r *Registry) byMode(mode Mode) []Item {
	var out []Item
	for _, item := range r.items {
		if item.Mode == mode {
			out = append(out, item)
		}
	}
	return out
}
