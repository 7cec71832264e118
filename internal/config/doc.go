// Package config handles configuration loading for passgate.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, then defaulted and validated.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PASSGATE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/passgate/config.yaml
//  3. ~/.config/passgate/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  secret_key: "${PASSGATE_SECRET_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  base_path: "/"              # prefix for route cookie paths
//	  shutdown_timeout: "5s"
//
//	auth:
//	  secret_key: "${PASSGATE_SECRET_KEY}"  # at least 32 bytes
//	  realm: "passgate"                     # Basic challenge realm
//
//	routes:
//	  dir: "./routes"
//
//	audit:
//	  database_path: "/var/lib/passgate/audit.db"  # empty disables
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
