package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"
)

const (
	DefaultEndpoint = "http://localhost:8888/process"
	DefaultPort     = "8888"
	DefaultProfile  = "progressive"
	DefaultTimeout  = 5 * time.Minute
)

// Profile is a fixed batching configuration for the upload controller
type Profile struct {
	Name           string
	BatchSize      int
	Delay          time.Duration
	Progressive    bool
	DelayAfterLast bool
}

// Profiles are the three batching strategies the web client shipped with:
// one file per request, pairs with a long pause, and groups of four rendered
// as each batch arrives.
var Profiles = map[string]Profile{
	"sequential": {
		Name:      "sequential",
		BatchSize: 1,
	},
	"batched": {
		Name:           "batched",
		BatchSize:      2,
		Delay:          500 * time.Millisecond,
		DelayAfterLast: true,
	},
	"progressive": {
		Name:           "progressive",
		BatchSize:      4,
		Delay:          200 * time.Millisecond,
		Progressive:    true,
		DelayAfterLast: true,
	},
}

// LookupProfile returns the named profile
func LookupProfile(name string) (Profile, error) {
	p, ok := Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %v)", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames returns the profile names sorted alphabetically
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Env returns the value of key, or fallback when unset or empty
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvDuration parses key as a time.Duration. Bare integers are read as seconds.
func EnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %w", key, err)
	}
	return d, nil
}
