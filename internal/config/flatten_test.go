package config

import (
	"testing"
)

func TestFlatten(t *testing.T) {
	m := map[string]any{
		"log_level": "info",
		"llm": map[string]any{
			"model":       "llama-3.1-8b-instant",
			"temperature": 0.7,
		},
		"a": map[string]any{"b": map[string]any{"c": true}},
		"empty": map[string]any{},
	}
	got := Flatten(m)

	want := map[string]any{
		"log_level":       "info",
		"llm.model":       "llama-3.1-8b-instant",
		"llm.temperature": 0.7,
		"a.b.c":           true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), len(got), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, got[k])
		}
	}
}

func TestUnflatten(t *testing.T) {
	got := Unflatten(map[string]any{
		"log_level":  "debug",
		"redis.host": "localhost",
		"redis.port": 6379.0,
		"a.b.c":      "deep",
	})

	if got["log_level"] != "debug" {
		t.Errorf("expected log_level=debug, got %v", got["log_level"])
	}
	redis, ok := got["redis"].(map[string]any)
	if !ok {
		t.Fatalf("expected redis to be a map, got %T", got["redis"])
	}
	if redis["host"] != "localhost" || redis["port"] != 6379.0 {
		t.Errorf("unexpected redis section %v", redis)
	}
	b := got["a"].(map[string]any)["b"].(map[string]any)
	if b["c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", b["c"])
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "gsk-round-trip"
	cfg.Telegram.Token = "123:abc"

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatal(err)
	}
	flat := Flatten(m)
	again := Flatten(Unflatten(flat))
	if len(again) != len(flat) {
		t.Fatalf("expected %d keys, got %d", len(flat), len(again))
	}
	for k, v := range flat {
		if again[k] != v {
			t.Errorf("%s: %v != %v", k, again[k], v)
		}
	}
}

func TestMaskSecrets(t *testing.T) {
	got := MaskSecrets(map[string]any{
		"llm.model":      "llama-3.1-8b-instant",
		"llm.api_key":    "gsk-test123456",
		"redis.password": "hunter2-pass",
		"telegram.token": "123456:ABCdefGHIjkl",
		"log_level":      "info",
	})

	tests := map[string]any{
		"llm.model":      "llama-3.1-8b-instant",
		"log_level":      "info",
		"llm.api_key":    "***3456",
		"redis.password": "***pass",
		"telegram.token": "***Ijkl",
	}
	for k, want := range tests {
		if got[k] != want {
			t.Errorf("%s: expected %v, got %v", k, want, got[k])
		}
	}
}

func TestMaskSecretsShortValues(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"ab", "***ab"},
		{"abcd", "***abcd"},
		{"abcde", "***bcde"},
	}
	for _, tt := range tests {
		got := MaskSecrets(map[string]any{"llm.api_key": tt.in})
		if got["llm.api_key"] != tt.want {
			t.Errorf("mask(%q): expected %q, got %v", tt.in, tt.want, got["llm.api_key"])
		}
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("redis.password") || IsSecretKey("redis.host") {
		t.Error("unexpected secret classification")
	}
}
