// Package openaichat serves Claude Messages requests from OpenAI-style Chat Completions
// backends, enabling Claude SDK clients to work with those models without code changes.
//
// The adapter handles:
//
//   - Message transformation: The system prompt becomes a leading system message. Tool
//     results inside user turns become tool-role messages that directly follow the
//     assistant's tool calls; the remaining user content follows them.
//
//   - Tool calling: Tool definitions are wrapped in function envelopes, tool_use inputs are
//     serialized into argument strings and parsed back on the way out. When the client
//     sends tools without a tool_choice, a configurable policy may pin a specific tool.
//
//   - Content blocks: Text and images map onto message content parts. Thinking blocks
//     in the history are dropped because Chat Completions has no way to send them back;
//     reasoning_content returned by the backend becomes thinking blocks.
//
//   - Streaming: Chat Completions deltas carry unindexed text and index-keyed tool calls.
//     Claude requires every block to be opened and closed explicitly, so a per-stream state
//     machine assigns block indices and brackets them with start/stop events.
//
// # Adapters
//
// CreateMessageAdapter: Claude Messages → OpenAI CreateChatCompletion
package openaichat
