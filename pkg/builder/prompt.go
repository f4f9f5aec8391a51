package builder

import "fmt"

// systemDirective is the fixed instruction prepended to every model turn.
// The protocol is strict JSON so tool requests can be parsed without
// provider-native tool calling: one object with a tool_calls array to act,
// or plain text to finish with a summary.
const systemDirectiveFormat = `You are a coding assistant that builds a project inside a virtual file tree.

Available tools:
%s
To use tools, respond with ONLY a JSON object in this exact shape and nothing else:
{"tool_calls": [{"tool": "<name>", "params": {...}}, ...]}

Tool calls execute in the order given. Each tool returns a JSON result that
will be sent back to you; failed calls return {"error": "..."} without
stopping the other calls in the batch.

Rules:
- Never invent node ids. Only use ids returned by earlier listFiles,
  createFile or createFolder results in this conversation.
- Create a folder before creating files inside it.
- When the work is complete, respond with a plain-text summary of what you
  built instead of a JSON object.`

func buildSystemDirective(registry *Registry) string {
	return fmt.Sprintf(systemDirectiveFormat, registry.Describe())
}
