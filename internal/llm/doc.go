// Package llm contains adapters for invoking large language models. It
// abstracts away provider-specific APIs and normalizes request/response
// lifecycles for use by the agent runtime. The production implementation
// lives in internal/llm/mistral; tests substitute stub clients.
package llm
