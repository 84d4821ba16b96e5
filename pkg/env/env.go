// Package env reads process environment values with defaults.
package env

import "os"

// Get returns the value of key, or fallback when the variable is unset or
// empty.
func Get(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
