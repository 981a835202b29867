package graph

import (
	"fmt"
	"strings"
)

// NodeRef renders a node pattern element. Either part may be empty:
//
//	NodeRef("m", NodeMessage) // "(m:Message)"
//	NodeRef("", NodeResource) // "(:Resource)"
//	NodeRef("m", "")          // "(m)"
func NodeRef(alias string, label string) string {
	switch {
	case alias == "" && label == "":
		return "()"
	case label == "":
		return "(" + alias + ")"
	case alias == "":
		return "(:" + label + ")"
	default:
		return "(" + alias + ":" + label + ")"
	}
}

// NodeID renders a node pattern anchored on an id parameter:
//
//	NodeID("m", NodeMessage, "id") // "(m:Message {id: $id})"
func NodeID(alias string, label string, param string) string {
	return fmt.Sprintf("(%s:%s {id: $%s})", alias, label, param)
}

// Expand renders a traversal pattern: the start node element followed by
// one relationship arrow and node per hop.
//
//	Expand(NodeID("t", NodeMessage, "id"),
//	    Hop{Rel: RelSent, Dir: DirIn, Alias: "s", Label: NodeIdentity},
//	    Hop{Rel: RelSent, Alias: "m", Label: NodeMessage})
//	// "(t:Message {id: $id})<-[:SENT]-(s:Identity)-[:SENT]->(m:Message)"
func Expand(start string, hops ...Hop) string {
	var b strings.Builder
	b.WriteString(start)
	for _, h := range hops {
		rel := "[:" + h.Rel + "]"
		if h.Dir == DirIn {
			b.WriteString("<-" + rel + "-")
		} else {
			b.WriteString("-" + rel + "->")
		}
		b.WriteString(NodeRef(h.Alias, h.Label))
	}
	return b.String()
}

// Match generates a MATCH clause for the given pattern.
func Match(pattern string) string {
	return "MATCH " + pattern
}

// OptionalMatch generates an OPTIONAL MATCH clause for the given pattern.
func OptionalMatch(pattern string) string {
	return "OPTIONAL MATCH " + pattern
}

// Where generates a WHERE clause from predicates joined with AND.
// Returns empty string when no predicates are given.
func Where(preds ...Predicate) string {
	if len(preds) == 0 {
		return ""
	}
	conditions := make([]string, 0, len(preds))
	for _, p := range preds {
		conditions = append(conditions, p.render())
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

// Return generates a RETURN clause from projection items. Each item is a
// full expression such as "m.id AS id" or "count(DISTINCT rcpt) AS recipients".
func Return(items ...string) string {
	return "RETURN " + strings.Join(items, ", ")
}

// ReturnDistinct generates a RETURN DISTINCT clause from projection items.
func ReturnDistinct(items ...string) string {
	return "RETURN DISTINCT " + strings.Join(items, ", ")
}

// OrderBy generates an ORDER BY clause. Each entry is a full field
// reference such as "m.timestamp DESC". Returns empty string when no
// fields are given.
func OrderBy(fields ...string) string {
	if len(fields) == 0 {
		return ""
	}
	return "ORDER BY " + strings.Join(fields, ", ")
}

// Limit generates a LIMIT clause. Returns empty string for n <= 0.
func Limit(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("LIMIT %d", n)
}

// Join assembles clauses into a single query, one clause per line,
// skipping empty clauses.
func Join(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n")
}
