// Package backend calls OpenAI-style Chat Completions backends.
//
// Three wire variants share one call contract:
//
//   - openai: the standard API, Bearer authentication, configurable base URL.
//   - azure: deployment-scoped URLs with an api-version query parameter, authenticated
//     with an api-key header or Microsoft Entra ID bearer tokens.
//   - custom: an HTTP-only provider that takes its key as the raw Authorization value and
//     streams either "data:"-prefixed lines (V1) or raw JSON lines (V2).
//
// Payloads use the go-openai types for every variant, so callers always see one canonical
// request, response and chunk shape.
//
// Every Complete and Stream call registers the request id with a cancellation.Registry,
// races the outbound call against the cancellation signal and releases the entry exactly
// once, whatever the outcome. Failures are returned as *Error values carrying one of the
// Kind constants together with a status code and guidance text.
package backend
