package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestOracleConfig_EmptyBackendDefaultsOllama(t *testing.T) {
	cfg := OracleConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty backend should default to ollama: %v", err)
	}
	if cfg.Backend != OracleBackendOllama {
		t.Errorf("backend = %q, want %q", cfg.Backend, OracleBackendOllama)
	}
}

func TestOracleConfig_OpenAIRequiresKey(t *testing.T) {
	cfg := OracleConfig{Backend: OracleBackendOpenAI}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("openai backend without api_key should fail")
	}
	if !strings.Contains(err.Error(), "api_key is empty") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("openai backend with api_key should pass: %v", err)
	}
}

func TestOracleConfig_UnknownBackend(t *testing.T) {
	cfg := OracleConfig{Backend: "bard"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown backend should fail validation")
	}
}

func TestAnalysisConfig_ConfidenceBounds(t *testing.T) {
	cfg := AnalysisConfig{MinConfidence: 1.5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("confidence above 1 should fail")
	}
	cfg.MinConfidence = 0.7
	if err := cfg.Validate(); err != nil {
		t.Fatalf("confidence in range should pass: %v", err)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Analysis.MinConfidence != 0.7 {
		t.Errorf("default min_confidence = %v, want 0.7", cfg.Analysis.MinConfidence)
	}
	if cfg.Changelog.Retention != 30 {
		t.Errorf("default retention = %d, want 30", cfg.Changelog.Retention)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
