package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the environment variable named by key parsed as a
// time.Duration (accepting Go duration syntax, e.g. "10s"), or fallback if
// unset, empty, or unparseable.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// Dimensions is a target frame width x height, per spec §6's DIMENSIONS
// environment variable.
type Dimensions struct {
	Width, Height int
}

// GetEnvDimensions parses key as a "<width>x<height>" pair (e.g.
// "1280x720"), or returns fallback if unset, empty, or malformed.
func GetEnvDimensions(key string, fallback Dimensions) Dimensions {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	d, err := parseDimensions(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseDimensions(s string) (Dimensions, error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return Dimensions{}, fmt.Errorf("config: malformed dimensions %q, want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Dimensions{}, fmt.Errorf("config: malformed width in %q: %w", s, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Dimensions{}, fmt.Errorf("config: malformed height in %q: %w", s, err)
	}
	return Dimensions{Width: width, Height: height}, nil
}
