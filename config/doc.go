// Package config loads broker settings from AZURE_* environment variables and an optional YAML file.
package config
