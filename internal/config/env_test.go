package config

import "testing"

func TestSubstituteEnv(t *testing.T) {
	t.Setenv("GW_TEST_TOKEN", "secret123")

	catalog := &Catalog{Servers: map[string]ServerDescriptor{
		"brave": {Command: "npx", Env: map[string]string{"TOKEN": "${GW_TEST_TOKEN}"}},
	}}

	out, err := SubstituteEnv(catalog)
	if err != nil {
		t.Fatalf("SubstituteEnv: %v", err)
	}
	if got := out.Servers["brave"].Env["TOKEN"]; got != "secret123" {
		t.Errorf("TOKEN = %q, want secret123", got)
	}
	// Original must not be mutated.
	if got := catalog.Servers["brave"].Env["TOKEN"]; got != "${GW_TEST_TOKEN}" {
		t.Errorf("original catalog mutated: TOKEN = %q", got)
	}
}

func TestSubstituteEnvMissingVar(t *testing.T) {
	catalog := &Catalog{Servers: map[string]ServerDescriptor{
		"brave": {Command: "npx", Env: map[string]string{"TOKEN": "${GW_DOES_NOT_EXIST}"}},
	}}

	if _, err := SubstituteEnv(catalog); err == nil {
		t.Fatal("expected error for missing env var")
	}
}
