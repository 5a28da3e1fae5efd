// Package agent contains the core dispatch runtime. It defines the closed
// set of agent roles (translator, summarizer, entity extractor, internet
// search, formatter), the prompt templates they render, and the Dispatcher
// that routes every task request to exactly one agent. Untyped requests can
// be routed either to a configured default agent or through an LLM planning
// call that decomposes the request into an action plan.
package agent
