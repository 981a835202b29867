package risk

import (
	"fmt"
	"strings"

	"github.com/phalanx-sec/mailtriage/evidence"
)

// evalContext carries everything a predicate may inspect: the evidence
// snapshot, the heuristics config, the lowercased message text, and the
// sender's historical recipient average when the follow-up lookup
// succeeded.
type evalContext struct {
	bundle *evidence.Bundle
	cfg    *Config

	// text is subject plus body, lowercased once for all linguistic
	// factors.
	text string

	avgRecipients float64
	avgKnown      bool
}

// totalSent returns the sender's total known message count including the
// target, deriving it from history length when the store gave no count.
func (ec *evalContext) totalSent() int {
	if ec.bundle.Sender.TotalSent > 0 {
		return ec.bundle.Sender.TotalSent
	}
	return len(ec.bundle.SenderHistory) + 1
}

// outcome is a predicate's verdict: whether the factor fired, the weight
// multiplier to apply (0 means "use 1.0"), a description, and evidence.
type outcome struct {
	fired       bool
	weight      float64
	description string
	evidence    any
}

// rule is one row of the declarative factor catalog.
type rule struct {
	name           string
	base           float64
	recommendation string
	evaluate       func(*evalContext) outcome
}

// catalog is the full factor table, evaluated in order. Names are unique,
// so no factor can fire twice in one run.
var catalog = []rule{
	{
		name:           "newSender",
		base:           15,
		recommendation: "verify the sender through an alternate channel before acting on this message",
		evaluate: func(ec *evalContext) outcome {
			if ec.totalSent() != 1 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: "first message ever seen from this sender",
				evidence:    map[string]any{"total_sent": 1},
			}
		},
	},
	{
		name:           "lowVolumeHistory",
		base:           10,
		recommendation: "treat requests from this low-volume sender with extra scrutiny",
		evaluate: func(ec *evalContext) outcome {
			total := ec.totalSent()
			if total < 2 || total > 4 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("sender has only %d known messages", total),
				evidence:    map[string]any{"total_sent": total},
			}
		},
	},
	{
		name:           "suspiciousEmailCount",
		base:           25,
		recommendation: "review the sender's previously flagged messages",
		evaluate: func(ec *evalContext) outcome {
			flagged := ec.bundle.FlaggedHistoryCount()
			if flagged < 1 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				weight:      capRatio(float64(flagged), 5),
				description: fmt.Sprintf("%d prior messages from this sender were flagged", flagged),
				evidence:    map[string]any{"flagged_count": flagged},
			}
		},
	},
	{
		name:           "maliciousHistory",
		base:           40,
		recommendation: "block the sender pending investigation; prior messages were confirmed malicious",
		evaluate: func(ec *evalContext) outcome {
			malicious := 0
			for _, h := range ec.bundle.SenderHistory {
				if h.Malicious {
					malicious++
				}
			}
			if malicious == 0 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("%d prior messages from this sender carried a malicious verdict", malicious),
				evidence:    map[string]any{"malicious_count": malicious},
			}
		},
	},
	{
		name: "externalDomain",
		base: 5,
		evaluate: func(ec *evalContext) outcome {
			domain := ec.bundle.Sender.Domain
			if domain == "" || containsFold(ec.cfg.InternalDomains, domain) {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("sender domain %q is not an internal domain", domain),
				evidence:    map[string]any{"sender_domain": domain},
			}
		},
	},
	{
		name: "hasAttachments",
		base: 10,
		evaluate: func(ec *evalContext) outcome {
			n := len(ec.bundle.Message.Attachments)
			if n == 0 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("message carries %d attachments", n),
				evidence:    map[string]any{"attachments": ec.bundle.Message.Attachments},
			}
		},
	},
	{
		name:           "suspiciousAttachmentTypes",
		base:           20,
		recommendation: "quarantine and sandbox the attachment before delivery",
		evaluate: func(ec *evalContext) outcome {
			var matched []string
			for _, name := range ec.bundle.Message.Attachments {
				lower := strings.ToLower(name)
				for _, ext := range ec.cfg.SuspiciousExtensions {
					if strings.HasSuffix(lower, ext) {
						matched = append(matched, name)
						break
					}
				}
			}
			if len(matched) == 0 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: "attachment filename matches an executable/script/archive extension",
				evidence:    map[string]any{"attachments": matched},
			}
		},
	},
	{
		name: "hasURLs",
		base: 5,
		evaluate: func(ec *evalContext) outcome {
			n := len(ec.bundle.ResourceAnalysis)
			if n == 0 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("message references %d resources", n),
				evidence:    map[string]any{"url_count": n},
			}
		},
	},
	{
		name:           "suspiciousDomains",
		base:           25,
		recommendation: "block the listed domains at the gateway",
		evaluate: func(ec *evalContext) outcome {
			flaggedInGraph := make(map[string]bool)
			for _, d := range ec.bundle.Infrastructure {
				if d.Malicious {
					flaggedInGraph[strings.ToLower(d.Domain)] = true
				}
			}

			var matched []string
			for _, r := range ec.bundle.ResourceAnalysis {
				domain := strings.ToLower(r.Domain)
				if domain == "" {
					continue
				}
				if flaggedInGraph[domain] || containsFold(ec.cfg.URLShorteners, domain) || hasSuffixAny(domain, ec.cfg.SuspiciousTLDs) {
					matched = append(matched, domain)
				}
			}
			if len(matched) == 0 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: "referenced domain matches a known-bad pattern",
				evidence:    map[string]any{"domains": dedupe(matched)},
			}
		},
	},
	{
		name:           "typosquatting",
		base:           30,
		recommendation: "add the lookalike domain to the blocklist",
		evaluate: func(ec *evalContext) outcome {
			var matched []string
			for _, r := range ec.bundle.ResourceAnalysis {
				domain := strings.ToLower(r.Domain)
				if domain == "" {
					continue
				}
				for _, protected := range ec.cfg.ProtectedDomains {
					p := strings.ToLower(protected)
					if domain != p && levenshtein(domain, p) == 1 {
						matched = append(matched, fmt.Sprintf("%s ~ %s", domain, p))
						break
					}
				}
			}
			if len(matched) == 0 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: "referenced domain is one edit away from a protected domain",
				evidence:    map[string]any{"lookalikes": matched},
			}
		},
	},
	{
		name: "unusualRecipientCount",
		base: 15,
		evaluate: func(ec *evalContext) outcome {
			if !ec.avgKnown || ec.avgRecipients <= 0 {
				return outcome{}
			}
			count := float64(len(ec.bundle.Message.Recipients))
			if count <= 3*ec.avgRecipients {
				return outcome{}
			}
			return outcome{
				fired: true,
				description: fmt.Sprintf("%d recipients against a historical average of %.1f",
					len(ec.bundle.Message.Recipients), ec.avgRecipients),
				evidence: map[string]any{
					"recipients": len(ec.bundle.Message.Recipients),
					"average":    ec.avgRecipients,
				},
			}
		},
	},
	{
		name: "afterHoursEmail",
		base: 5,
		evaluate: func(ec *evalContext) outcome {
			ts := ec.bundle.Message.Timestamp
			if ts.IsZero() {
				return outcome{}
			}
			hour := ts.UTC().Hour()
			if hour >= ec.cfg.BusinessHoursStart && hour < ec.cfg.BusinessHoursEnd {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("sent at %02d:00 UTC, outside business hours", hour),
				evidence:    map[string]any{"hour": hour},
			}
		},
	},
	{
		name: "rapidFireSequence",
		base: 20,
		evaluate: func(ec *evalContext) outcome {
			ts := ec.bundle.Message.Timestamp
			if ts.IsZero() {
				return outcome{}
			}
			burst := 0
			for _, h := range ec.bundle.SenderHistory {
				if h.Timestamp.IsZero() {
					continue
				}
				gap := ts.Sub(h.Timestamp)
				if gap >= 0 && gap <= ec.cfg.RapidFireWindow.Std() {
					burst++
				}
			}
			if burst < ec.cfg.RapidFireCount {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("%d messages from this sender inside %s", burst, ec.cfg.RapidFireWindow.Std()),
				evidence:    map[string]any{"burst": burst},
			}
		},
	},
	{
		name: "crossOrganizational",
		base: 10,
		evaluate: func(ec *evalContext) outcome {
			domains := make(map[string]bool)
			for _, rcpt := range ec.bundle.Message.Recipients {
				if _, domain, ok := strings.Cut(rcpt, "@"); ok {
					domains[strings.ToLower(domain)] = true
				}
			}
			if len(domains) <= 3 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("recipients span %d distinct domains", len(domains)),
				evidence:    map[string]any{"domain_count": len(domains)},
			}
		},
	},
	{
		name:           "partOfCampaign",
		base:           15,
		recommendation: "correlate with the other messages in the matched campaign",
		evaluate: func(ec *evalContext) outcome {
			if len(ec.bundle.CampaignMatches) == 0 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				description: fmt.Sprintf("message belongs to %d known campaigns", len(ec.bundle.CampaignMatches)),
				evidence:    ec.bundle.CampaignMatches,
			}
		},
	},
	{
		name: "campaignSize",
		base: 10,
		evaluate: func(ec *evalContext) outcome {
			largest := 0
			for _, c := range ec.bundle.CampaignMatches {
				if c.MessageCount > largest {
					largest = c.MessageCount
				}
			}
			if largest < ec.cfg.CampaignSizeThreshold {
				return outcome{}
			}
			return outcome{
				fired:       true,
				weight:      capRatio(float64(largest), 20),
				description: fmt.Sprintf("largest matched campaign has %d other messages", largest),
				evidence:    map[string]any{"campaign_size": largest},
			}
		},
	},
	{
		name: "urgencyLanguage",
		base: 15,
		evaluate: func(ec *evalContext) outcome {
			matched := termsPresent(ec.text, ec.cfg.UrgencyWords)
			if len(matched) < 2 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				weight:      capRatio(float64(len(matched)), 4),
				description: "message uses urgency language",
				evidence:    map[string]any{"terms": matched},
			}
		},
	},
	{
		name:           "financialRequest",
		base:           25,
		recommendation: "verify any payment or credential request out of band",
		evaluate: func(ec *evalContext) outcome {
			matched := termsPresent(ec.text, ec.cfg.FinancialWords)
			if len(matched) < 2 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				weight:      capRatio(float64(len(matched)), 3),
				description: "message requests financial or credential action",
				evidence:    map[string]any{"terms": matched},
			}
		},
	},
	{
		name:           "impersonationAttempt",
		base:           35,
		recommendation: "confirm the purported sender's identity directly",
		evaluate: func(ec *evalContext) outcome {
			matched := termsPresent(ec.text, ec.cfg.AuthorityTitles)
			if len(matched) == 0 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				weight:      0.8,
				description: "message invokes an authority title",
				evidence:    map[string]any{"terms": matched},
			}
		},
	},
	{
		name: "socialEngineering",
		base: 20,
		evaluate: func(ec *evalContext) outcome {
			matched := termsPresent(ec.text, ec.cfg.SocialEngineeringPhrases)
			if len(matched) < 2 {
				return outcome{}
			}
			return outcome{
				fired:       true,
				weight:      capRatio(float64(len(matched)), 3),
				description: "message uses known social-engineering phrasing",
				evidence:    map[string]any{"terms": matched},
			}
		},
	},
}

// capRatio returns min(n/denominator, 1.0).
func capRatio(n, denominator float64) float64 {
	ratio := n / denominator
	if ratio > 1 {
		return 1
	}
	return ratio
}

// termsPresent returns the distinct terms from the set that occur in the
// lowercased text, in set order.
func termsPresent(text string, terms []string) []string {
	var matched []string
	for _, term := range terms {
		if strings.Contains(text, strings.ToLower(term)) {
			matched = append(matched, term)
		}
	}
	return matched
}

func containsFold(set []string, s string) bool {
	for _, entry := range set {
		if strings.EqualFold(entry, s) {
			return true
		}
	}
	return false
}

func hasSuffixAny(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// levenshtein computes edit distance between two strings. Only small
// inputs (domain names) pass through here.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
