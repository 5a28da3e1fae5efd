// Package config provides centralized configuration management for the
// AgentRelay runtime, combining a JSON configuration file with environment
// variables for secrets such as LLM API keys.
package config
