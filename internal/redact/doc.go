// Package redact removes secrets from diff text before it is sent to a
// review backend.
//
// Detection uses regex heuristics for common secret shapes: API keys, JWTs,
// private key headers, AWS keys, bearer tokens, credentials embedded in
// database URLs and connection strings, and provider tokens.
//
// Files whose paths match configured glob patterns are withheld entirely
// instead of being scanned.
package redact
