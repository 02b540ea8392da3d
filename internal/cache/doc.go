// Package cache keeps review backend answers on disk.
//
// An entry is keyed by the SHA-256 of provider, model, system prompt and
// payload, so any change to the diff, the classification line or the prompt
// misses. Entries expire after a TTL in seconds.
//
// The default directory is $XDG_CACHE_HOME/revgate or the OS equivalent.
// Payloads are redacted before they are hashed or stored.
package cache
