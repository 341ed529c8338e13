// Package config loads and validates gateway configuration.
//
// Configuration is YAML with ${ENV} expansion. The backend list, the
// rate-window length, and the per-backend QPS budgets are fixed at load
// time and immutable for the process lifetime.
package config
