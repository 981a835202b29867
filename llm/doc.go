// Package llm defines the provider-neutral types used to talk to a
// language model during an investigation.
//
// The package covers:
//   - Message types for conversations (system, user, assistant, tool)
//   - Completion requests and responses with functional options
//   - Tool/function calling definitions
//   - Token usage tracking keyed by investigation stage
//
// # Completer
//
// Completer is the single injection point for a model backend. The
// grounded QA assistant and the investigation loop depend only on this
// interface; the anthropic subpackage provides the production
// implementation.
//
//	resp, err := completer.Complete(ctx, llm.NewCompletionRequest(messages,
//	    llm.WithMaxTokens(2048),
//	    llm.WithTools(tools...),
//	))
//
// # Token tracking
//
// TokenTracker accumulates usage per stage (one hop of the loop, one QA
// answer) so a caller can report spend for a whole investigation:
//
//	tracker := llm.NewTokenTracker()
//	tracker.Add("hop-1", resp.Usage)
//	total := tracker.Total()
package llm
