package config

import (
	"fmt"
	"os"
	"regexp"
)

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// SubstituteEnv replaces ${VAR} placeholders in every stdio server's env map
// with values from the process environment. It returns a new Catalog
// (the input is never mutated) or an error naming the first missing
// variable, per spec.md §4.1.
func SubstituteEnv(catalog *Catalog) (*Catalog, error) {
	out := &Catalog{Servers: make(map[string]ServerDescriptor, len(catalog.Servers))}
	for name, desc := range catalog.Servers {
		if desc.Env == nil {
			out.Servers[name] = desc
			continue
		}
		resolved := make(map[string]string, len(desc.Env))
		for k, v := range desc.Env {
			substituted, err := substituteValue(v)
			if err != nil {
				return nil, fmt.Errorf("server %q env[%q]: %w", name, k, err)
			}
			resolved[k] = substituted
		}
		desc.Env = resolved
		out.Servers[name] = desc
	}
	return out, nil
}

func substituteValue(v string) (string, error) {
	var firstErr error
	result := envPlaceholder.ReplaceAllStringFunc(v, func(match string) string {
		name := envPlaceholder.FindStringSubmatch(match)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("environment variable %q is not set", name)
			}
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
