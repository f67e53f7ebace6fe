// Package types provides Claude Messages API types for server-side request/response handling.
//
// The types are hand-written rather than taken from anthropic-sdk-go:
//
//  1. SERVER-SIDE vs CLIENT-SIDE: The SDK param types are built for sending requests TO
//     Anthropic. This gateway receives requests FROM Claude clients, so it needs types that
//     decode naturally with encoding/json and validate with struct tags.
//
//  2. TAGGED UNIONS: Content blocks are modelled as one struct per block kind behind a
//     ContentBlock union. Unknown kinds are kept as a bare tag so conversion can reject them
//     instead of silently passing them through.
//
//  3. STREAM EVENTS: Event is a flat union of all Claude stream events, which keeps SSE
//     encoding a single json.Marshal call.
//
// Constants shared with the SDK (stop reasons) are derived from anthropic-sdk-go so both
// stay in sync.
package types
