// Package memory is the client side of the memory-service contract.
//
// The service exposes four tools over an MCP connection:
//
//   - enrich_context: semantic recall for the current user query
//   - store_exchange: persist one user/assistant pair
//   - get_last_chunk_index: last recorded chunk index for a source
//   - get_core_identity: the service's structured identity payload
//
// Responses are a JSON envelope ({ "success": bool, ... }) carried in
// the first text content block of the tool result. The client treats a
// missing text block, a JSON parse failure, and success != true
// uniformly as a soft failure and returns the operation's empty result.
//
// Every operation probes availability through the Invoker before
// calling out; when the service is down the operation short-circuits
// without any network traffic. Nothing in this package returns errors
// past construction: memory is a best-effort capability and its
// failures degrade the conversation, never abort it.
package memory
