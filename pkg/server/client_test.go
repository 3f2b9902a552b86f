package server

import (
	"context"
	"strings"
	"testing"
)

func TestClientIdentifier_Identify(t *testing.T) {
	ci, err := NewClientIdentifier([]ClientSource{
		{Type: "claim", Name: "sub"},
		{Type: "header", Name: "X-Client-ID"},
		{Type: "query_param", Name: "client", Pattern: `^team-(\w+)$`},
	})
	if err != nil {
		t.Fatalf("new identifier: %v", err)
	}

	tests := []struct {
		name string
		req  MapClientRequest
		want string
	}{
		{"claim wins", MapClientRequest{Claims: map[string]string{"sub": "alice"}, Headers: map[string]string{"X-Client-ID": "bob"}}, "alice"},
		{"header is case-insensitive", MapClientRequest{Headers: map[string]string{"x-client-id": "bob"}}, "bob"},
		{"pattern capture", MapClientRequest{QueryParams: map[string]string{"client": "team-ops"}}, "ops"},
		{"pattern miss falls back", MapClientRequest{QueryParams: map[string]string{"client": "ops"}, Remote: "10.0.0.1"}, "ip:10.0.0.1"},
		{"invalid id falls back", MapClientRequest{Headers: map[string]string{"X-Client-ID": "a b"}, Remote: "10.0.0.2"}, "ip:10.0.0.2"},
		{"nothing", MapClientRequest{Remote: "10.0.0.3"}, "ip:10.0.0.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ci.Identify(&tt.req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewClientIdentifier_Errors(t *testing.T) {
	tests := []ClientSource{
		{Type: "tds_property", Name: "x"},
		{Type: "header", Name: "x", Pattern: "("},
		{Type: "header", Name: "x", Pattern: "(a)(b)"},
	}
	for _, src := range tests {
		if _, err := NewClientIdentifier([]ClientSource{src}); err == nil {
			t.Errorf("expected error for %+v", src)
		}
	}
}

func TestValidateClientID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"alice", true},
		{"alice@example.com", true},
		{"ip:10.0.0.1", true},
		{"", false},
		{"a b", false},
		{"semi;colon", false},
		{strings.Repeat("a", 129), false},
	}
	for _, tt := range tests {
		if err := ValidateClientID(tt.id); (err == nil) != tt.valid {
			t.Errorf("ValidateClientID(%q): expected valid=%v, got %v", tt.id, tt.valid, err)
		}
	}
}

func TestClientContext(t *testing.T) {
	if _, ok := ClientFromContext(context.Background()); ok {
		t.Error("expected no client in empty context")
	}
	ctx := WithClient(context.Background(), "alice")
	if got, ok := ClientFromContext(ctx); !ok || got != "alice" {
		t.Errorf("expected alice, got %q", got)
	}
}
