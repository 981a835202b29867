package graph

import (
	"strings"
	"testing"
)

func TestNodeRef(t *testing.T) {
	tests := []struct {
		alias, label string
		want         string
	}{
		{"m", NodeMessage, "(m:Message)"},
		{"", NodeResource, "(:Resource)"},
		{"m", "", "(m)"},
		{"", "", "()"},
	}
	for _, tt := range tests {
		if got := NodeRef(tt.alias, tt.label); got != tt.want {
			t.Errorf("NodeRef(%q, %q) = %q, want %q", tt.alias, tt.label, got, tt.want)
		}
	}
}

func TestNodeID(t *testing.T) {
	got := NodeID("m", NodeMessage, "id")
	if got != "(m:Message {id: $id})" {
		t.Errorf("NodeID() = %q", got)
	}
}

func TestExpand(t *testing.T) {
	got := Expand(NodeID("t", NodeMessage, "id"),
		Hop{Rel: RelSent, Dir: DirIn, Alias: "s", Label: NodeIdentity},
		Hop{Rel: RelSent, Alias: "m", Label: NodeMessage})
	want := "(t:Message {id: $id})<-[:SENT]-(s:Identity)-[:SENT]->(m:Message)"
	if got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}

func TestExpandAnonymousNodes(t *testing.T) {
	got := Expand(NodeRef("m", ""),
		Hop{Rel: RelReferences, Label: NodeResource},
		Hop{Rel: RelBelongsTo, Alias: "d", Label: NodeDomain})
	want := "(m)-[:REFERENCES]->(:Resource)-[:BELONGS_TO]->(d:Domain)"
	if got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}

func TestWhere(t *testing.T) {
	got := Where(
		Predicate{Field: "m.id", Op: Neq, Param: "id"},
		Predicate{Field: "m.verdict", Op: Eq, Param: "verdict"},
	)
	want := "WHERE m.id <> $id AND m.verdict = $verdict"
	if got != want {
		t.Errorf("Where() = %q, want %q", got, want)
	}

	if got := Where(); got != "" {
		t.Errorf("Where() with no predicates = %q, want empty", got)
	}
}

func TestWhereNullChecks(t *testing.T) {
	got := Where(Predicate{Field: "m.verdict", Op: IsNull})
	if got != "WHERE m.verdict IS NULL" {
		t.Errorf("Where(IsNull) = %q", got)
	}
	got = Where(Predicate{Field: "m.verdict", Op: IsNotNull})
	if got != "WHERE m.verdict IS NOT NULL" {
		t.Errorf("Where(IsNotNull) = %q", got)
	}
}

func TestReturnClauses(t *testing.T) {
	if got := Return("m.id AS id", "count(DISTINCT rcpt) AS recipients"); got != "RETURN m.id AS id, count(DISTINCT rcpt) AS recipients" {
		t.Errorf("Return() = %q", got)
	}
	if got := ReturnDistinct("d.name AS domain"); got != "RETURN DISTINCT d.name AS domain" {
		t.Errorf("ReturnDistinct() = %q", got)
	}
}

func TestOrderByAndLimit(t *testing.T) {
	if got := OrderBy("m.timestamp DESC"); got != "ORDER BY m.timestamp DESC" {
		t.Errorf("OrderBy() = %q", got)
	}
	if got := OrderBy(); got != "" {
		t.Errorf("OrderBy() with no fields = %q, want empty", got)
	}
	if got := Limit(10); got != "LIMIT 10" {
		t.Errorf("Limit(10) = %q", got)
	}
	if got := Limit(0); got != "" {
		t.Errorf("Limit(0) = %q, want empty", got)
	}
}

func TestJoinSkipsEmptyClauses(t *testing.T) {
	got := Join(
		Match(NodeID("m", NodeMessage, "id")),
		Where(),
		Return("m.id AS id"),
		OrderBy(),
		Limit(0),
	)
	want := "MATCH (m:Message {id: $id})\nRETURN m.id AS id"
	if got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}
}

func TestJoinFullQuery(t *testing.T) {
	got := Join(
		Match(Expand(NodeID("t", NodeMessage, "id"),
			Hop{Rel: RelReferences, Alias: "r", Label: NodeResource},
			Hop{Rel: RelReferences, Dir: DirIn, Alias: "m", Label: NodeMessage})),
		Where(Predicate{Field: "m.id", Op: Neq, Param: "id"}),
		Return("m.id AS id", "r.url AS shared"),
		OrderBy("m.timestamp DESC"),
	)

	lines := strings.Split(got, "\n")
	want := []string{
		"MATCH (t:Message {id: $id})-[:REFERENCES]->(r:Resource)<-[:REFERENCES]-(m:Message)",
		"WHERE m.id <> $id",
		"RETURN m.id AS id, r.url AS shared",
		"ORDER BY m.timestamp DESC",
	}
	if len(lines) != len(want) {
		t.Fatalf("Join() produced %d lines, want %d:\n%s", len(lines), len(want), got)
	}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d = %q, want %q", i, line, want[i])
		}
	}
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{Eq, "="}, {Neq, "<>"}, {Lt, "<"}, {Lte, "<="},
		{Gt, ">"}, {Gte, ">="}, {Contains, "CONTAINS"}, {In, "IN"},
		{IsNull, "IS NULL"}, {IsNotNull, "IS NOT NULL"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", int(tt.op), got, tt.want)
		}
	}
}
