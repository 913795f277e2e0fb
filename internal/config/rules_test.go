package config

import "testing"

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name: "valid wildcard and literal patterns",
			json: `{"agents":{"admin":{"allow":{"servers":["*"],"tools":{"*":["*"]}}}}}`,
		},
		{
			name: "prefix and suffix wildcards",
			json: `{"agents":{"researcher":{"allow":{"servers":["brave"],"tools":{"brave":["get_*","*_query","exact"]}}}}}`,
		},
		{
			name:    "agent id with @",
			json:    `{"agents":{"bad@agent":{}}}`,
			wantErr: true,
		},
		{
			name:    "wildcard in middle of tool pattern",
			json:    `{"agents":{"x":{"allow":{"tools":{"pg":["get_*_all"]}}}}}`,
			wantErr: true,
		},
		{
			name:    "non-solitary server wildcard",
			json:    `{"agents":{"x":{"allow":{"servers":["prefix*"]}}}}`,
			wantErr: true,
		},
		{
			name:    "two wildcards in one tool pattern",
			json:    `{"agents":{"x":{"allow":{"tools":{"pg":["*_a_*"]}}}}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseRules([]byte(tt.json))
			if err != nil {
				if !tt.wantErr {
					t.Fatalf("ParseRules: %v", err)
				}
				return
			}
			err = ValidateRules(doc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRules() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestCrossCheckWarnsOnUnknownServer(t *testing.T) {
	catalog := &Catalog{Servers: map[string]ServerDescriptor{"brave": {Command: "npx"}}}
	rules := &Rules{Agents: map[string]AgentPolicy{
		"researcher": {Allow: RuleSection{Servers: []string{"brave", "ghost"}}},
	}}

	warnings := CrossCheck(catalog, rules)
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if warnings[0].Server != "ghost" {
		t.Errorf("warning server = %q, want ghost", warnings[0].Server)
	}
}

func TestCrossCheckIgnoresWildcardServer(t *testing.T) {
	catalog := &Catalog{Servers: map[string]ServerDescriptor{}}
	rules := &Rules{Agents: map[string]AgentPolicy{
		"admin": {Allow: RuleSection{Servers: []string{"*"}}},
	}}

	if warnings := CrossCheck(catalog, rules); len(warnings) != 0 {
		t.Errorf("expected no warnings for wildcard server, got %v", warnings)
	}
}
