// Package config handles loading and parsing of configuration from YAML files
// and TGPROXY_* environment variables. It defines the application
// configuration structure: listener addresses, the upstream Bot API URL,
// health checking, circuit breaking, metrics and logging.
package config
