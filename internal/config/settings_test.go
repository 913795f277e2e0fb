package config

import "testing"

func TestValidateSettingsAcceptsWellFormedPaths(t *testing.T) {
	err := ValidateSettings(Settings{
		CatalogPath:  ".mcp.json",
		RulesPath:    ".mcp-gateway-rules.json",
		DefaultAgent: "researcher",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateSettingsRejectsEmptyPaths(t *testing.T) {
	err := ValidateSettings(Settings{})
	if err == nil {
		t.Fatal("expected an error for missing catalog/rules paths")
	}
}

func TestValidateSettingsRejectsSpaceInDefaultAgent(t *testing.T) {
	err := ValidateSettings(Settings{
		CatalogPath:  ".mcp.json",
		RulesPath:    ".mcp-gateway-rules.json",
		DefaultAgent: "has space",
	})
	if err == nil {
		t.Fatal("expected an error for a default agent name containing whitespace")
	}
}
