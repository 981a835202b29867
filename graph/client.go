// Package graph defines the read-only boundary to the property graph that
// stores messages, senders, referenced resources, campaigns, and detections.
// It provides a type-safe Cypher clause builder and typed row readers
// for the loosely typed values a graph driver returns.
package graph

import (
	"context"
	"fmt"
)

// Node labels in the investigation graph.
const (
	NodeMessage   = "Message"
	NodeIdentity  = "Identity"
	NodeResource  = "Resource"
	NodeDomain    = "Domain"
	NodeCampaign  = "Campaign"
	NodeDetection = "Detection"
)

// Relationship types in the investigation graph.
const (
	RelSent       = "SENT"       // (Identity)-[:SENT]->(Message)
	RelSentTo     = "SENT_TO"    // (Message)-[:SENT_TO]->(Identity)
	RelReferences = "REFERENCES" // (Message)-[:REFERENCES]->(Resource)
	RelBelongsTo  = "BELONGS_TO" // (Resource)-[:BELONGS_TO]->(Domain)
	RelTriggered  = "TRIGGERED"  // (Message)-[:TRIGGERED]->(Detection)
	RelPartOf     = "PART_OF"    // (Message)-[:PART_OF]->(Campaign)
)

// Client executes read-only Cypher queries against the graph store.
// Implementations handle connection management, parameter binding, and
// result parsing. Each call must run in its own read transaction so that
// concurrent traversals never block one another.
//
// The investigation core never writes through this interface.
type Client interface {
	// Query executes a Cypher query with parameters and returns raw results.
	// Each result row is returned as a map of column names to values.
	Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// Op represents a comparison or filter operation in a query predicate.
type Op int

const (
	// Eq represents equality comparison (=)
	Eq Op = iota
	// Neq represents inequality comparison (<>)
	Neq
	// Lt represents less than comparison (<)
	Lt
	// Lte represents less than or equal comparison (<=)
	Lte
	// Gt represents greater than comparison (>)
	Gt
	// Gte represents greater than or equal comparison (>=)
	Gte
	// Contains represents string containment check (CONTAINS)
	Contains
	// In represents membership check (IN)
	In
	// IsNull represents null check (IS NULL)
	IsNull
	// IsNotNull represents non-null check (IS NOT NULL)
	IsNotNull
)

// String returns the Cypher representation of the operation.
func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Neq:
		return "<>"
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Contains:
		return "CONTAINS"
	case In:
		return "IN"
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Predicate is one filter condition comparing a field reference against a
// named query parameter. The caller binds the parameter value when it
// executes the query, so the same built query string is reusable.
type Predicate struct {
	// Field is the full field reference, e.g. "m.id".
	Field string
	// Op is the comparison operation to perform.
	Op Op
	// Param is the parameter name without the $ prefix. Ignored for
	// IsNull and IsNotNull.
	Param string
}

func (p Predicate) render() string {
	switch p.Op {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", p.Field, p.Op)
	default:
		return fmt.Sprintf("%s %s $%s", p.Field, p.Op, p.Param)
	}
}

// Direction orients one hop of a traversal pattern.
type Direction int

const (
	// DirOut follows the relationship in its stored direction.
	DirOut Direction = iota
	// DirIn follows the relationship against its stored direction.
	DirIn
)

// Hop is one relationship step in a traversal pattern. Alias and Label
// may each be empty for anonymous intermediate nodes.
type Hop struct {
	Rel   string
	Dir   Direction
	Alias string
	Label string
}
