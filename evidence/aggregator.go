package evidence

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/phalanx-sec/mailtriage"
	"github.com/phalanx-sec/mailtriage/graph"
)

// Caps on the history and relatedness traversals.
const (
	historyLimit = 10
	relatedLimit = 10
)

// Traversal queries, assembled from the graph clause builders. Each runs
// in its own read transaction against the graph store; none mutates store
// state. Every query binds a single $id parameter.
var (
	// notTarget drops the message under investigation from result sets.
	notTarget = graph.Predicate{Field: "m.id", Op: graph.Neq, Param: "id"}

	// senderOutbox matches every other message sent by the target's sender.
	senderOutbox = graph.Expand(graph.NodeID("t", graph.NodeMessage, "id"),
		graph.Hop{Rel: graph.RelSent, Dir: graph.DirIn, Alias: "s", Label: graph.NodeIdentity},
		graph.Hop{Rel: graph.RelSent, Alias: "m", Label: graph.NodeMessage})

	messageQuery = graph.Join(
		graph.Match(graph.NodeID("m", graph.NodeMessage, "id")),
		graph.OptionalMatch(graph.Expand("(m)",
			graph.Hop{Rel: graph.RelSent, Dir: graph.DirIn, Alias: "s", Label: graph.NodeIdentity})),
		graph.OptionalMatch(graph.Expand("(m)",
			graph.Hop{Rel: graph.RelSentTo, Alias: "rcpt", Label: graph.NodeIdentity})),
		graph.OptionalMatch(graph.Expand("(m)",
			graph.Hop{Rel: graph.RelReferences, Alias: "r", Label: graph.NodeResource})),
		graph.OptionalMatch(graph.Expand("(r)",
			graph.Hop{Rel: graph.RelBelongsTo, Alias: "rd", Label: graph.NodeDomain})),
		graph.OptionalMatch(graph.Expand("(m)",
			graph.Hop{Rel: graph.RelTriggered, Alias: "det", Label: graph.NodeDetection})),
		graph.Return(
			"m.id AS id", "m.subject AS subject", "m.body AS body",
			"m.timestamp AS timestamp", "m.verdict AS verdict",
			"m.threat_score AS threat_score", "m.attachments AS attachments",
			"s.address AS sender", "s.domain AS sender_domain",
			"collect(DISTINCT rcpt.address) AS recipients",
			"collect(DISTINCT {url: r.url, domain: rd.name, scanned: r.scanned, malicious: r.malicious}) AS resources",
			"collect(DISTINCT {id: det.id, type: det.type, severity: det.severity}) AS detections"),
	)

	historyQuery = graph.Join(
		graph.Match(senderOutbox),
		graph.Where(notTarget),
		graph.OptionalMatch(graph.Expand("(m)",
			graph.Hop{Rel: graph.RelTriggered, Alias: "det", Label: graph.NodeDetection})),
		graph.OptionalMatch(graph.Expand("(m)",
			graph.Hop{Rel: graph.RelSentTo, Alias: "rcpt", Label: graph.NodeIdentity})),
		graph.Return(
			"m.id AS id", "m.subject AS subject", "m.timestamp AS timestamp",
			"m.verdict AS verdict",
			"count(DISTINCT rcpt) AS recipients",
			"collect(DISTINCT det.type) AS detections"),
		graph.OrderBy("m.timestamp DESC"),
		graph.Limit(historyLimit),
	)

	senderCountQuery = graph.Join(
		graph.Match(senderOutbox),
		graph.Return("count(DISTINCT m) AS total"),
	)

	exactMatchQuery = graph.Join(
		graph.Match(graph.Expand(graph.NodeID("t", graph.NodeMessage, "id"),
			graph.Hop{Rel: graph.RelReferences, Alias: "r", Label: graph.NodeResource},
			graph.Hop{Rel: graph.RelReferences, Dir: graph.DirIn, Alias: "m", Label: graph.NodeMessage})),
		graph.Where(notTarget),
		graph.Return("m.id AS id", "m.subject AS subject", "m.timestamp AS timestamp", "r.url AS shared"),
		graph.OrderBy("m.timestamp DESC"),
	)

	domainMatchQuery = graph.Join(
		graph.Match(graph.Expand(graph.NodeID("t", graph.NodeMessage, "id"),
			graph.Hop{Rel: graph.RelReferences, Label: graph.NodeResource},
			graph.Hop{Rel: graph.RelBelongsTo, Alias: "d", Label: graph.NodeDomain},
			graph.Hop{Rel: graph.RelBelongsTo, Dir: graph.DirIn, Label: graph.NodeResource},
			graph.Hop{Rel: graph.RelReferences, Dir: graph.DirIn, Alias: "m", Label: graph.NodeMessage})),
		graph.Where(notTarget),
		graph.ReturnDistinct("m.id AS id", "m.subject AS subject", "m.timestamp AS timestamp", "d.name AS shared"),
		graph.OrderBy("m.timestamp DESC"),
	)

	reputationQuery = graph.Join(
		graph.Match(graph.Expand(graph.NodeID("t", graph.NodeMessage, "id"),
			graph.Hop{Rel: graph.RelReferences, Label: graph.NodeResource},
			graph.Hop{Rel: graph.RelBelongsTo, Alias: "d", Label: graph.NodeDomain})),
		graph.OptionalMatch(graph.Expand("(d)",
			graph.Hop{Rel: graph.RelBelongsTo, Dir: graph.DirIn, Label: graph.NodeResource},
			graph.Hop{Rel: graph.RelReferences, Dir: graph.DirIn, Alias: "ref", Label: graph.NodeMessage})),
		graph.ReturnDistinct(
			"d.name AS domain", "d.malicious AS malicious",
			"d.reputation AS reputation", "count(DISTINCT ref) AS reference_count"),
		graph.OrderBy("reference_count DESC"),
	)

	campaignQuery = graph.Join(
		graph.Match(graph.Expand(graph.NodeID("t", graph.NodeMessage, "id"),
			graph.Hop{Rel: graph.RelPartOf, Alias: "c", Label: graph.NodeCampaign})),
		graph.OptionalMatch(graph.Expand("(c)",
			graph.Hop{Rel: graph.RelPartOf, Dir: graph.DirIn, Alias: "other", Label: graph.NodeMessage})),
		graph.Where(graph.Predicate{Field: "other.id", Op: graph.Neq, Param: "id"}),
		graph.Return("c.id AS id", "c.name AS name", "count(DISTINCT other) AS message_count"),
	)

	recipientAvgQuery = graph.Join(
		graph.Match(senderOutbox),
		graph.Where(notTarget),
		graph.OptionalMatch(graph.Expand("(m)",
			graph.Hop{Rel: graph.RelSentTo, Alias: "rcpt", Label: graph.NodeIdentity})),
		graph.Return("m.id AS id", "count(DISTINCT rcpt) AS recipients"),
	)
)

// Aggregator gathers the evidence bundle for a single message by fanning
// out five concurrent read-only traversals against the injected graph
// client.
type Aggregator struct {
	client graph.Client
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLogger sets the structured logger used by the aggregator.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator creates an Aggregator over the given graph client.
func NewAggregator(client graph.Client, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		client: client,
		logger: slog.Default(),
		tracer: otel.Tracer("mailtriage/evidence"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Gather builds the evidence bundle for messageID.
//
// The five traversals run concurrently, each over its own isolated read
// query. Partial or empty traversal results are valid; any traversal
// failure aborts the whole gather and no partial bundle is returned.
//
// Returns a KindNotFound error when no message node exists for messageID
// and a KindUpstream error when the graph store fails.
func (a *Aggregator) Gather(ctx context.Context, messageID string) (*Bundle, error) {
	const op = "Aggregator.Gather"

	ctx, span := a.tracer.Start(ctx, "evidence.Gather",
		trace.WithAttributes(attribute.String("message.id", messageID)))
	defer span.End()

	params := map[string]any{"id": messageID}
	bundle := &Bundle{GatheredAt: a.now()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := a.client.Query(gctx, messageQuery, params)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return mailtriage.ErrMessageNotFound
		}
		a.fillMessage(bundle, rows[0])
		return nil
	})

	g.Go(func() error {
		rows, err := a.client.Query(gctx, historyQuery, params)
		if err != nil {
			return err
		}
		bundle.SenderHistory = parseHistory(rows)

		counts, err := a.client.Query(gctx, senderCountQuery, params)
		if err != nil {
			return err
		}
		if len(counts) > 0 {
			bundle.Sender.TotalSent = graph.IntField(counts[0], "total")
		}
		return nil
	})

	g.Go(func() error {
		exact, err := a.client.Query(gctx, exactMatchQuery, params)
		if err != nil {
			return err
		}
		byDomain, err := a.client.Query(gctx, domainMatchQuery, params)
		if err != nil {
			return err
		}
		bundle.RelatedMessages = mergeRelated(exact, byDomain)
		return nil
	})

	g.Go(func() error {
		rows, err := a.client.Query(gctx, reputationQuery, params)
		if err != nil {
			return err
		}
		bundle.Infrastructure = parseReputation(rows)
		return nil
	})

	g.Go(func() error {
		rows, err := a.client.Query(gctx, campaignQuery, params)
		if err != nil {
			return err
		}
		bundle.CampaignMatches = parseCampaigns(rows)
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		if errors.Is(err, mailtriage.ErrMessageNotFound) {
			return nil, mailtriage.NewNotFoundError(op, err).
				WithContext(map[string]any{"message_id": messageID})
		}
		a.logger.Error("evidence gather failed",
			"message_id", messageID,
			"error", err)
		return nil, mailtriage.NewUpstreamError(op, err).
			WithContext(map[string]any{"message_id": messageID})
	}

	a.logger.Debug("evidence gathered",
		"message_id", messageID,
		"history", len(bundle.SenderHistory),
		"related", len(bundle.RelatedMessages),
		"domains", len(bundle.Infrastructure),
		"campaigns", len(bundle.CampaignMatches))

	return bundle, nil
}

// AverageRecipients returns the average recipients-per-message across the
// sender's prior messages, excluding the target. Returns 0 and no error
// when the sender has no prior messages.
//
// The risk engine treats any failure here as "average unknown".
func (a *Aggregator) AverageRecipients(ctx context.Context, messageID string) (float64, error) {
	rows, err := a.client.Query(ctx, recipientAvgQuery, map[string]any{"id": messageID})
	if err != nil {
		return 0, mailtriage.NewUpstreamError("Aggregator.AverageRecipients", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	total := 0
	for _, row := range rows {
		total += graph.IntField(row, "recipients")
	}
	return float64(total) / float64(len(rows)), nil
}

func (a *Aggregator) fillMessage(bundle *Bundle, row map[string]any) {
	bundle.Message = MessageDetails{
		ID:          graph.StringField(row, "id"),
		Subject:     graph.StringField(row, "subject"),
		Body:        graph.StringField(row, "body"),
		Timestamp:   graph.TimeField(row, "timestamp"),
		Recipients:  graph.StringsField(row, "recipients"),
		Attachments: graph.StringsField(row, "attachments"),
		Verdict:     graph.StringField(row, "verdict"),
		ThreatScore: graph.IntField(row, "threat_score"),
	}
	bundle.Sender.Address = graph.StringField(row, "sender")
	bundle.Sender.Domain = graph.StringField(row, "sender_domain")

	if resources, ok := row["resources"].([]any); ok {
		for _, entry := range resources {
			r, ok := entry.(map[string]any)
			if !ok || graph.StringField(r, "url") == "" {
				continue
			}
			bundle.ResourceAnalysis = append(bundle.ResourceAnalysis, ResourceRecord{
				URL:       graph.StringField(r, "url"),
				Domain:    graph.StringField(r, "domain"),
				Scanned:   graph.BoolField(r, "scanned"),
				Malicious: graph.BoolField(r, "malicious"),
			})
		}
	}

	if detections, ok := row["detections"].([]any); ok {
		for _, entry := range detections {
			d, ok := entry.(map[string]any)
			if !ok || graph.StringField(d, "id") == "" {
				continue
			}
			bundle.Detections = append(bundle.Detections, DetectionRef{
				ID:       graph.StringField(d, "id"),
				Type:     graph.StringField(d, "type"),
				Severity: graph.StringField(d, "severity"),
			})
		}
	}
}

func parseHistory(rows []map[string]any) []HistoricalMessage {
	if len(rows) > historyLimit {
		rows = rows[:historyLimit]
	}
	history := make([]HistoricalMessage, 0, len(rows))
	for _, row := range rows {
		history = append(history, HistoricalMessage{
			ID:         graph.StringField(row, "id"),
			Subject:    graph.StringField(row, "subject"),
			Timestamp:  graph.TimeField(row, "timestamp"),
			Recipients: graph.IntField(row, "recipients"),
			Detections: graph.StringsField(row, "detections"),
			Malicious:  graph.StringField(row, "verdict") == "malicious",
		})
	}
	return history
}

// mergeRelated unions exact-resource matches with same-domain matches.
// Exact matches are strictly higher priority and are ordered first; a
// message already captured as an exact match never reappears as a domain
// match; within each tier ordering is by timestamp descending. A message
// sharing several exact resources appears once, first resource wins.
func mergeRelated(exact, byDomain []map[string]any) []RelatedMessage {
	seen := make(map[string]bool)
	related := make([]RelatedMessage, 0, len(exact)+len(byDomain))

	for _, row := range exact {
		id := graph.StringField(row, "id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		related = append(related, RelatedMessage{
			ID:        id,
			Subject:   graph.StringField(row, "subject"),
			Timestamp: graph.TimeField(row, "timestamp"),
			MatchType: MatchExactResource,
			Shared:    graph.StringField(row, "shared"),
		})
	}

	for _, row := range byDomain {
		id := graph.StringField(row, "id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		related = append(related, RelatedMessage{
			ID:        id,
			Subject:   graph.StringField(row, "subject"),
			Timestamp: graph.TimeField(row, "timestamp"),
			MatchType: MatchSameDomain,
			Shared:    graph.StringField(row, "shared"),
		})
	}

	// The store already orders each tier by recency; re-sort to hold the
	// invariant even if a backend returns rows unordered.
	sort.SliceStable(related, func(i, j int) bool {
		if related[i].MatchType != related[j].MatchType {
			return related[i].MatchType == MatchExactResource
		}
		return related[i].Timestamp.After(related[j].Timestamp)
	})

	if len(related) > relatedLimit {
		related = related[:relatedLimit]
	}
	return related
}

func parseReputation(rows []map[string]any) []DomainReputation {
	reputation := make([]DomainReputation, 0, len(rows))
	for _, row := range rows {
		if graph.StringField(row, "domain") == "" {
			continue
		}
		reputation = append(reputation, DomainReputation{
			Domain:         graph.StringField(row, "domain"),
			Malicious:      graph.BoolField(row, "malicious"),
			Reputation:     graph.StringField(row, "reputation"),
			ReferenceCount: graph.IntField(row, "reference_count"),
		})
	}
	sort.SliceStable(reputation, func(i, j int) bool {
		return reputation[i].ReferenceCount > reputation[j].ReferenceCount
	})
	return reputation
}

func parseCampaigns(rows []map[string]any) []CampaignRef {
	campaigns := make([]CampaignRef, 0, len(rows))
	for _, row := range rows {
		if graph.StringField(row, "id") == "" {
			continue
		}
		campaigns = append(campaigns, CampaignRef{
			ID:           graph.StringField(row, "id"),
			Name:         graph.StringField(row, "name"),
			MessageCount: graph.IntField(row, "message_count"),
		})
	}
	return campaigns
}
