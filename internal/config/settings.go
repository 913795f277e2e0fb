package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Settings is the gateway's fixed-shape, environment-sourced configuration
// surface — as opposed to the catalog and rules documents, whose shapes are
// too irregular for struct-tag validation (an agent's allow.tools is a
// map of string to wildcard-pattern slices; go-playground/validator/v10
// cannot express "no interior wildcard" the way validateToolPattern in
// rules.go does). Settings only covers what IS fixed-shape: the resolved
// paths and flags.
type Settings struct {
	CatalogPath  string `validate:"required,filepath"`
	RulesPath    string `validate:"required,filepath"`
	DefaultAgent string `validate:"omitempty,excludesall= "`
	Debug        bool
}

var settingsValidator = validator.New()

// ValidateSettings checks the fixed-shape settings surface, distinct from
// ValidateCatalog/ValidateRules which hand-validate the two JSON documents'
// irregular, data-dependent shapes.
func ValidateSettings(s Settings) error {
	if err := settingsValidator.Struct(s); err != nil {
		return fmt.Errorf("config_invalid: %w", err)
	}
	return nil
}
