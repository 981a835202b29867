// Package evidence assembles the per-message context an investigation works
// from. The Aggregator runs five independent read-only graph traversals
// concurrently and merges their results into a single immutable Bundle.
package evidence

import "time"

// MatchType classifies how a related message is connected to the target.
type MatchType string

const (
	// MatchExactResource means the message references the exact same
	// resource (literal URL) as the target. Strictly higher priority than
	// a domain match.
	MatchExactResource MatchType = "exact_resource"

	// MatchSameDomain means the message only shares the owning domain of a
	// referenced resource with the target.
	MatchSameDomain MatchType = "same_domain"
)

// MessageDetails holds the target message and its immediate neighborhood.
// Fields read from the graph default to their zero value when the store has
// no data for them; consumers must treat "" and 0 as "unknown".
type MessageDetails struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
	Recipients  []string  `json:"recipients"`
	Attachments []string  `json:"attachments"`

	// Verdict is the pre-computed analysis verdict for the message
	// ("malicious", "clean", or "" when not analyzed).
	Verdict string `json:"verdict"`

	// ThreatScore is the pre-computed aggregate score attached to the
	// message node, 0 when absent.
	ThreatScore int `json:"threat_score"`
}

// SenderProfile describes the origin identity of the target message.
type SenderProfile struct {
	Address string `json:"address"`
	Domain  string `json:"domain"`

	// TotalSent is the number of messages the graph knows for this
	// identity, including the target message itself.
	TotalSent int `json:"total_sent"`
}

// HistoricalMessage is a prior message from the same origin identity,
// annotated with any detections it triggered.
type HistoricalMessage struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Timestamp  time.Time `json:"timestamp"`
	Recipients int       `json:"recipients"`

	// Detections lists the detection types this message triggered.
	// Empty means the message was never flagged.
	Detections []string `json:"detections"`

	// Malicious is true when the message carries a malicious verdict.
	Malicious bool `json:"malicious"`
}

// Flagged reports whether the message triggered at least one detection.
func (h HistoricalMessage) Flagged() bool {
	return len(h.Detections) > 0
}

// RelatedMessage is another message connected to the target through a
// shared resource or a shared domain. Exact matches order strictly before
// domain matches, then by recency.
type RelatedMessage struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
	MatchType MatchType `json:"match_type"`

	// Shared names the resource URL (exact matches) or the domain
	// (domain matches) the connection runs through. When a message shares
	// several exact resources with the target it appears once, first
	// resource wins.
	Shared string `json:"shared"`
}

// ResourceRecord is one resource (link) referenced by the target message,
// with its scan state. Scanned distinguishes "never scanned" from "scanned
// and clean".
type ResourceRecord struct {
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Scanned   bool   `json:"scanned"`
	Malicious bool   `json:"malicious"`
}

// DomainReputation is the reputation of one domain referenced by the
// target's resources, ordered by how many messages reference it.
type DomainReputation struct {
	Domain         string `json:"domain"`
	Malicious      bool   `json:"malicious"`
	Reputation     string `json:"reputation"`
	ReferenceCount int    `json:"reference_count"`
}

// CampaignRef is a campaign the target message belongs to.
type CampaignRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// MessageCount is the number of other messages in the same campaign.
	MessageCount int `json:"message_count"`
}

// DetectionRef is a detection triggered by the target message itself.
type DetectionRef struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
}

// Bundle is the unified evidence snapshot for one message. It is built
// fresh per investigation, never mutated after construction, and owned
// exclusively by the caller that requested it. Empty slices are valid
// results (a brand-new sender has an empty history), not errors.
type Bundle struct {
	Message          MessageDetails      `json:"message"`
	Sender           SenderProfile       `json:"sender"`
	SenderHistory    []HistoricalMessage `json:"sender_history"`
	RelatedMessages  []RelatedMessage    `json:"related_messages"`
	Infrastructure   []DomainReputation  `json:"infrastructure_reputation"`
	ResourceAnalysis []ResourceRecord    `json:"resource_analysis"`
	CampaignMatches  []CampaignRef       `json:"campaign_matches"`
	Detections       []DetectionRef      `json:"detections"`

	// GatheredAt records when the snapshot was assembled.
	GatheredAt time.Time `json:"gathered_at"`
}

// MaliciousDomains returns the referenced domains flagged malicious,
// in reputation order.
func (b *Bundle) MaliciousDomains() []string {
	var out []string
	for _, d := range b.Infrastructure {
		if d.Malicious {
			out = append(out, d.Domain)
		}
	}
	return out
}

// MaliciousResources returns the referenced resources whose scan verdict
// is malicious.
func (b *Bundle) MaliciousResources() []ResourceRecord {
	var out []ResourceRecord
	for _, r := range b.ResourceAnalysis {
		if r.Scanned && r.Malicious {
			out = append(out, r)
		}
	}
	return out
}

// FlaggedHistoryCount returns how many prior messages from the sender
// triggered at least one detection.
func (b *Bundle) FlaggedHistoryCount() int {
	n := 0
	for _, h := range b.SenderHistory {
		if h.Flagged() {
			n++
		}
	}
	return n
}
