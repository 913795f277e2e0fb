// Package config implements the gateway's Config & Validator component:
// parsing, structural validation, cross-checking, and environment-variable
// substitution for the two JSON configuration files (spec.md §4.1).
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

const (
	envMCPConfig     = "GATEWAY_MCP_CONFIG"
	envRules         = "GATEWAY_RULES"
	envDefaultAgent  = "GATEWAY_DEFAULT_AGENT"
	envDebug         = "GATEWAY_DEBUG"
	defaultCatalog   = ".mcp.json"
	fallbackCatalog  = "./config/.mcp.json"
	defaultRulesPath = ".mcp-gateway-rules.json"
	fallbackRules    = "./config/.mcp-gateway-rules.json"
)

// Paths holds the resolved filesystem locations of the two configuration
// documents, per spec.md §6.
type Paths struct {
	CatalogPath string
	RulesPath   string
}

// InitViper binds the gateway's environment variables, mirroring the
// teacher's env-prefix/replacer convention but without a YAML config file:
// the two JSON documents are the entire configuration surface.
func InitViper() {
	viper.SetEnvPrefix("GATEWAY")
	viper.AutomaticEnv()
	_ = viper.BindEnv("mcp_config")
	_ = viper.BindEnv("rules")
	_ = viper.BindEnv("default_agent")
	_ = viper.BindEnv("debug")
}

// ResolvePaths resolves the catalog and rules file paths from environment
// variables, falling back to the documented defaults and fallback
// locations in spec.md §6.
func ResolvePaths() Paths {
	return Paths{
		CatalogPath: resolvePath(envMCPConfig, defaultCatalog, fallbackCatalog),
		RulesPath:   resolvePath(envRules, defaultRulesPath, fallbackRules),
	}
}

func resolvePath(envVar, primary, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if _, err := os.Stat(primary); err == nil {
		return primary
	}
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	return primary
}

// DefaultAgent returns the GATEWAY_DEFAULT_AGENT environment value, or "".
func DefaultAgent() string {
	return os.Getenv(envDefaultAgent)
}

// DebugEnabled reports whether GATEWAY_DEBUG is truthy.
func DebugEnabled() bool {
	v := os.Getenv(envDebug)
	return v == "1" || v == "true" || v == "TRUE" || v == "yes"
}

// LoadAndValidate implements `load_and_validate` from spec.md §4.1: read
// both files, parse JSON, validate both, cross-check, substitute env, and
// return the fully built pair or the first error encountered.
func LoadAndValidate(catalogPath, rulesPath string) (*Catalog, *Rules, []CrossCheckWarning, error) {
	catalogBytes, err := os.ReadFile(catalogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, fmt.Errorf("config_not_found: catalog file %q: %w", catalogPath, err)
		}
		return nil, nil, nil, fmt.Errorf("catalog file %q: %w", catalogPath, err)
	}
	rulesBytes, err := os.ReadFile(rulesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, fmt.Errorf("config_not_found: rules file %q: %w", rulesPath, err)
		}
		return nil, nil, nil, fmt.Errorf("rules file %q: %w", rulesPath, err)
	}

	catalogDocParsed, err := ParseCatalog(catalogBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config_invalid: %w", err)
	}
	if err := ValidateCatalog(catalogDocParsed); err != nil {
		return nil, nil, nil, fmt.Errorf("config_invalid: %w", err)
	}

	rulesDocParsed, err := ParseRules(rulesBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config_invalid: %w", err)
	}
	if err := ValidateRules(rulesDocParsed); err != nil {
		return nil, nil, nil, fmt.Errorf("config_invalid: %w", err)
	}

	catalog := BuildCatalog(catalogDocParsed)
	catalog, err = SubstituteEnv(catalog)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("env_missing: %w", err)
	}

	rules := BuildRules(rulesDocParsed)
	warnings := CrossCheck(catalog, rules)

	return catalog, rules, warnings, nil
}
