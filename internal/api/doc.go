// Package api exposes the REST surface for dispatching agent tasks, managing
// the asynchronous task queue, and serving health and metrics endpoints.
package api
