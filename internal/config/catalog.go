package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ServerDescriptor is a downstream MCP server entry from the catalog. It is
// a tagged variant: exactly one of Command or URL is set, distinguishing a
// stdio-spawned server from an HTTP one.
type ServerDescriptor struct {
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Description string            `json:"description,omitempty"`
}

// IsStdio reports whether this descriptor spawns a child process.
func (d ServerDescriptor) IsStdio() bool { return d.Command != "" }

// IsHTTP reports whether this descriptor connects over HTTP.
func (d ServerDescriptor) IsHTTP() bool { return d.URL != "" }

// Transport returns "stdio" or "http".
func (d ServerDescriptor) Transport() string {
	if d.IsStdio() {
		return "stdio"
	}
	return "http"
}

// Catalog is the validated, in-memory downstream server catalog. It is
// treated as an immutable snapshot once built: readers never mutate it.
type Catalog struct {
	Servers map[string]ServerDescriptor
}

// Names returns the catalog's server names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// catalogDoc mirrors the on-disk shape of the catalog file (.mcp.json).
type catalogDoc struct {
	MCPServers map[string]rawDescriptor `json:"mcpServers"`
}

// rawDescriptor captures every field regardless of variant so validation can
// detect "neither" and "both" before deciding which variant applies.
type rawDescriptor struct {
	Command     *string            `json:"command"`
	Args        []string           `json:"args"`
	Env         map[string]string  `json:"env"`
	URL         *string            `json:"url"`
	Headers     map[string]string  `json:"headers"`
	Description *string            `json:"description"`
}

// ParseCatalog unmarshals raw JSON bytes into a catalogDoc for validation.
func ParseCatalog(data []byte) (catalogDoc, error) {
	var doc catalogDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return catalogDoc{}, fmt.Errorf("catalog: invalid JSON: %w", err)
	}
	return doc, nil
}

// ValidateCatalog performs structural validation of a parsed catalog
// document with no I/O, per spec.md §4.1. It fails fast on the first error.
func ValidateCatalog(doc catalogDoc) error {
	if doc.MCPServers == nil {
		return fmt.Errorf(`root: missing required key "mcpServers"`)
	}

	for name, raw := range doc.MCPServers {
		hasCommand := raw.Command != nil
		hasURL := raw.URL != nil

		if hasCommand == hasURL {
			if hasCommand {
				return fmt.Errorf("server %q: must have exactly one of \"command\" or \"url\", has both", name)
			}
			return fmt.Errorf("server %q: must have exactly one of \"command\" or \"url\"", name)
		}

		if hasCommand {
			if *raw.Command == "" {
				return fmt.Errorf("server %q command: must be a non-empty string", name)
			}
			if raw.Headers != nil {
				return fmt.Errorf("server %q: \"headers\" is only valid for url-based servers", name)
			}
		}

		if hasURL {
			u := *raw.URL
			if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				return fmt.Errorf("server %q url: must start with \"http://\" or \"https://\", got %q", name, u)
			}
			if raw.Args != nil || raw.Env != nil {
				return fmt.Errorf("server %q: \"args\"/\"env\" are only valid for command-based servers", name)
			}
		}
	}
	return nil
}

// BuildCatalog converts a validated document into the in-memory Catalog.
// Callers must call ValidateCatalog first.
func BuildCatalog(doc catalogDoc) *Catalog {
	servers := make(map[string]ServerDescriptor, len(doc.MCPServers))
	for name, raw := range doc.MCPServers {
		d := ServerDescriptor{Env: raw.Env, Headers: raw.Headers, Args: raw.Args}
		if raw.Command != nil {
			d.Command = *raw.Command
		}
		if raw.URL != nil {
			d.URL = *raw.URL
		}
		if raw.Description != nil {
			d.Description = *raw.Description
		}
		servers[name] = d
	}
	return &Catalog{Servers: servers}
}
