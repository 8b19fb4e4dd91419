package provider

import "testing"

func TestAuthUser(t *testing.T) {
	tests := map[Type]string{
		TypeGitLab:      "oauth2",
		TypeGitHub:      "x-access-token",
		TypeAzureDevOps: "pat",
	}
	for typ, want := range tests {
		if got := typ.AuthUser(); got != want {
			t.Errorf("%s.AuthUser() = %q, want %q", typ, got, want)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	r := Request{Name: " corp ", BaseURL: " https://gitlab.example.com ", Type: TypeGitLab, Token: " tok "}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Name != "corp" || r.Token != "tok" || r.BaseURL != "https://gitlab.example.com" {
		t.Fatalf("expected trimmed fields, got %+v", r)
	}

	bad := []Request{
		{Name: "", BaseURL: "https://x", Type: TypeGitHub, Token: "t"},
		{Name: "n", BaseURL: "https://x", Type: "BITBUCKET", Token: "t"},
		{Name: "n", BaseURL: "ftp://x", Type: TypeGitHub, Token: "t"},
		{Name: "n", BaseURL: "https://x", Type: TypeGitHub, Token: "  "},
	}
	for i := range bad {
		if err := bad[i].Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestResolveGitConfig(t *testing.T) {
	if got := ResolveGitConfig("[user]\n  name = x\n\n", ""); got != "[user]\n  name = x" {
		t.Errorf("unexpected trimmed config %q", got)
	}
	if got := ResolveGitConfig("  ", "[core]\n"); got != "[core]\n" {
		t.Errorf("expected fallback, got %q", got)
	}
	if got := ResolveGitConfig("", ""); got != DefaultGitConfig {
		t.Errorf("expected default, got %q", got)
	}
}
