package config

import (
	"strings"
	"time"
)

// LoadLocation accepts IANA names plus "Local" and "UTC".
func LoadLocation(name string) (*time.Location, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	}
	return time.LoadLocation(strings.TrimSpace(name))
}
