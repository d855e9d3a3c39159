package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLookupProfile(t *testing.T) {
	tests := []struct {
		name        string
		batchSize   int
		delay       time.Duration
		progressive bool
	}{
		{"sequential", 1, 0, false},
		{"batched", 2, 500 * time.Millisecond, false},
		{"progressive", 4, 200 * time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LookupProfile(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if p.BatchSize != tt.batchSize || p.Delay != tt.delay || p.Progressive != tt.progressive {
				t.Errorf("LookupProfile(%q) = %+v", tt.name, p)
			}
		})
	}

	if _, err := LookupProfile("turbo"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestProfileNames(t *testing.T) {
	want := []string{"batched", "progressive", "sequential"}
	if got := ProfileNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ProfileNames() = %v, want %v", got, want)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("RESIZER_TEST_VALUE", "")
	if got := Env("RESIZER_TEST_VALUE", "fallback"); got != "fallback" {
		t.Errorf("Env() unset = %q", got)
	}
	t.Setenv("RESIZER_TEST_VALUE", "set")
	if got := Env("RESIZER_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("Env() = %q", got)
	}
}

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"", DefaultTimeout, false},
		{"45", 45 * time.Second, false},
		{"90s", 90 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"later", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("RESIZER_TEST_TIMEOUT", tt.value)
			got, err := EnvDuration("RESIZER_TEST_TIMEOUT", DefaultTimeout)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EnvDuration() error = %v", err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("EnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
