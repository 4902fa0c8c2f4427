package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(KeyMinioAccessKey, "minio")
	t.Setenv(KeyMinioSecretKey, "minio123")
	t.Setenv(KeyMinioURI, "localhost:9000")
	t.Setenv(KeyMLflowURI, "http://localhost:5000")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.Bucket != "cml" || cfg.Storage.Object != "wine_quality.csv" {
		t.Errorf("unexpected object location %s/%s", cfg.Storage.Bucket, cfg.Storage.Object)
	}
	if cfg.Tracking.Experiment != "training experiment" {
		t.Errorf("unexpected experiment %q", cfg.Tracking.Experiment)
	}
	if cfg.Storage.Secure {
		t.Error("storage connection should be insecure by default")
	}
	if cfg.OutputDir != "." {
		t.Errorf("expected output dir '.', got %q", cfg.OutputDir)
	}

	tr := cfg.Training
	if tr.Seed != 44 || tr.TestSize != 0.2 || tr.MaxDepth != 5 || tr.Target != "quality" {
		t.Errorf("unexpected training defaults: %+v", tr)
	}
}

func TestLoad_MissingSettings(t *testing.T) {
	t.Setenv(KeyMinioAccessKey, "")
	t.Setenv(KeyMinioSecretKey, "")
	t.Setenv(KeyMinioURI, "localhost:9000")
	t.Setenv(KeyMLflowURI, "")

	_, err := Load(New())
	if !errors.Is(err, ErrMissingSetting) {
		t.Fatalf("expected ErrMissingSetting, got %v", err)
	}

	for _, key := range []string{KeyMinioAccessKey, KeyMinioSecretKey, KeyMLflowURI} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s: %v", key, err)
		}
	}
	if strings.Contains(err.Error(), KeyMinioURI+",") {
		t.Errorf("error should not mention set key %s: %v", KeyMinioURI, err)
	}
}

func TestBindFlags_Override(t *testing.T) {
	setRequired(t)

	v := New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(v, flags); err != nil {
		t.Fatalf("bind flags: %v", err)
	}
	if err := flags.Parse([]string{"--bucket", "other", "--output-dir", "/tmp/out"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Bucket != "other" {
		t.Errorf("expected bucket from flag, got %q", cfg.Storage.Bucket)
	}
	if cfg.OutputDir != "/tmp/out" {
		t.Errorf("expected output dir from flag, got %q", cfg.OutputDir)
	}
	if cfg.Storage.Object != "wine_quality.csv" {
		t.Errorf("unset flag should keep default, got %q", cfg.Storage.Object)
	}
}

func TestStorageConfig_Endpoint(t *testing.T) {
	tests := []struct {
		uri        string
		secure     bool
		wantHost   string
		wantSecure bool
	}{
		{"minio:9000", false, "minio:9000", false},
		{"http://minio:9000/", false, "minio:9000", false},
		{"https://s3.example.com", false, "s3.example.com", true},
		{"minio:9000", true, "minio:9000", true},
	}

	for _, tt := range tests {
		host, secure := StorageConfig{URI: tt.uri, Secure: tt.secure}.Endpoint()
		if host != tt.wantHost || secure != tt.wantSecure {
			t.Errorf("Endpoint(%q, %v) = (%q, %v), want (%q, %v)",
				tt.uri, tt.secure, host, secure, tt.wantHost, tt.wantSecure)
		}
	}
}
