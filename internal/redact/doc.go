// Package redact removes secrets from diff content before it is sent to any
// text-generation provider.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS access key IDs and secret access keys, bearer
// tokens and provider-specific tokens (Anthropic, OpenAI, GitHub, Slack).
//
// A [Policy] can also withhold whole files: paths matching its glob
// patterns are replaced with a single [REDACTED] line.
package redact
