package config

import "testing"

func TestValidateCatalog(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name: "valid stdio and http servers",
			json: `{"mcpServers":{
				"brave":{"command":"npx","args":["-y","x"]},
				"api":{"url":"https://example.com/mcp","headers":{"X-Key":"v"}}
			}}`,
		},
		{
			name:    "missing mcpServers key",
			json:    `{}`,
			wantErr: true,
		},
		{
			name:    "neither command nor url",
			json:    `{"mcpServers":{"x":{"description":"no transport"}}}`,
			wantErr: true,
		},
		{
			name:    "both command and url",
			json:    `{"mcpServers":{"x":{"command":"ls","url":"https://example.com"}}}`,
			wantErr: true,
		},
		{
			name:    "bad url scheme",
			json:    `{"mcpServers":{"x":{"url":"ftp://example.com"}}}`,
			wantErr: true,
		},
		{
			name:    "empty command",
			json:    `{"mcpServers":{"x":{"command":""}}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseCatalog([]byte(tt.json))
			if err != nil {
				if !tt.wantErr {
					t.Fatalf("ParseCatalog: %v", err)
				}
				return
			}
			err = ValidateCatalog(doc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCatalog() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildCatalogTransport(t *testing.T) {
	doc, err := ParseCatalog([]byte(`{"mcpServers":{
		"brave":{"command":"npx"},
		"api":{"url":"https://example.com"}
	}}`))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if err := ValidateCatalog(doc); err != nil {
		t.Fatalf("ValidateCatalog: %v", err)
	}
	catalog := BuildCatalog(doc)

	if got := catalog.Servers["brave"].Transport(); got != "stdio" {
		t.Errorf("brave transport = %q, want stdio", got)
	}
	if got := catalog.Servers["api"].Transport(); got != "http" {
		t.Errorf("api transport = %q, want http", got)
	}
}
