// Package mailtriage is the core of an email threat investigation service.
//
// Given a single suspicious message, the module assembles corroborating
// context from a relationship graph of senders, messages, referenced
// resources, campaigns, and prior detections, then uses that context three
// ways:
//
//   - evidence: concurrent read-only graph traversals build one immutable
//     evidence bundle per message.
//   - risk: a deterministic, table-driven multi-factor model converts
//     evidence into a 0-100 score, a risk level, a confidence rating, and
//     ranked recommendations.
//   - assistant: the same bundle grounds an LLM question-answering
//     assistant whose answers are constrained to cite actual evidence.
//   - investigate: a bounded, streaming, multi-hop reasoning loop wraps
//     the assistant and analyst tools, emits ordered progress frames, and
//     persists its transcript into a session store.
//
// The graph store, the LLM service, and the session store are injected
// through interfaces (graph.Client, llm.Completer, session.Store) so the
// core never owns process-global connections and every component can be
// exercised with test doubles.
//
// The root package holds the shared error taxonomy. See the Error type and
// the Kind* constants for how failures are categorized across components.
package mailtriage
