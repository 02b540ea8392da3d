// Package providers implements the Reviewer interface for each supported
// review backend.
//
// Supported backends: a local Copilot proxy (the default), OpenAI, Anthropic,
// Gemini, and Ollama or LM Studio for local models. The proxy and the local
// servers speak the OpenAI chat-completions protocol.
//
// All providers share a retry helper with exponential back-off that honors
// Retry-After on 429 responses and retries 5xx responses. Missing
// credentials surface as an auth error ([IsAuthError]). Tests point
// [Options.HTTPClient] and [Options.Endpoint] at httptest servers.
//
// Use [New] to obtain a Reviewer by provider name, and [NewRateLimited] to
// throttle it.
package providers
