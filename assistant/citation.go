package assistant

import (
	"fmt"

	"github.com/phalanx-sec/mailtriage/evidence"
)

// CitationType names the evidence category a citation points to.
type CitationType string

const (
	CitationEmail         CitationType = "email"
	CitationSenderHistory CitationType = "sender_history"
	CitationDomain        CitationType = "domain"
	CitationURL           CitationType = "url"
	CitationCampaign      CitationType = "campaign"
)

// Citation ties an answer back to a specific evidence category. Citations
// are derived mechanically from which categories of the bundle were
// non-empty, never from the model's prose.
type Citation struct {
	Type        CitationType `json:"type"`
	ID          string       `json:"id"`
	Description string       `json:"description"`
}

// deriveCitations computes the citation list for a bundle:
// a sender_history citation iff the history is non-empty, a campaign
// citation iff related messages exist, and one domain citation per
// domain flagged malicious.
func deriveCitations(bundle *evidence.Bundle) []Citation {
	var citations []Citation

	if len(bundle.SenderHistory) > 0 {
		citations = append(citations, Citation{
			Type:        CitationSenderHistory,
			ID:          bundle.Sender.Address,
			Description: fmt.Sprintf("%d prior messages from this sender", len(bundle.SenderHistory)),
		})
	}

	if len(bundle.RelatedMessages) > 0 {
		citations = append(citations, Citation{
			Type:        CitationCampaign,
			ID:          bundle.Message.ID,
			Description: fmt.Sprintf("%d related messages sharing resources or domains", len(bundle.RelatedMessages)),
		})
	}

	for _, domain := range bundle.MaliciousDomains() {
		citations = append(citations, Citation{
			Type:        CitationDomain,
			ID:          domain,
			Description: fmt.Sprintf("domain %s is flagged malicious", domain),
		})
	}

	return citations
}
