// Package agent assembles the resilient invocation layer into a runnable agent.
//
// The package wires together:
//   - BackendFactory, which turns model configuration into provider adapters
//     wrapped in per-backend middleware (metrics, validation, circuit breaker,
//     rate limit, timeout)
//   - the failover invoker, which retries the primary and falls back once to
//     the secondary
//   - Chatbot, which shapes the conversation and reports tool calls
//   - HandleInvocation, the {"prompt"} to {"result"} runtime entrypoint
//
// Provider adapters live under internal/ and are only reachable through the factory.
package agent
