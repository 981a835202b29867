package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/phalanx-sec/mailtriage/evidence"
)

// Section names referenced by the instruction prompt. Claims in an
// answer must cite one of these.
const (
	sectionMessage        = "MESSAGE"
	sectionSenderHistory  = "SENDER HISTORY"
	sectionRelated        = "RELATED MESSAGES"
	sectionInfrastructure = "DOMAIN REPUTATION"
	sectionResources      = "RESOURCE ANALYSIS"
	sectionCampaigns      = "CAMPAIGNS"
	sectionDetections     = "DETECTIONS"
)

// hardEvidence lists the non-negotiable facts the model is not allowed
// to contradict: a definitively malicious verdict, an aggregate threat
// score of 50 or more, and any malicious resource or domain.
func hardEvidence(bundle *evidence.Bundle) []string {
	var facts []string

	if strings.EqualFold(bundle.Message.Verdict, "malicious") {
		facts = append(facts, "this message carries a definitive MALICIOUS verdict")
	}
	if bundle.Message.ThreatScore >= 50 {
		facts = append(facts, fmt.Sprintf("the aggregate threat score is %d (high)", bundle.Message.ThreatScore))
	}
	for _, r := range bundle.MaliciousResources() {
		facts = append(facts, fmt.Sprintf("referenced resource %s was scanned and found malicious", r.URL))
	}
	for _, d := range bundle.MaliciousDomains() {
		facts = append(facts, fmt.Sprintf("referenced domain %s is flagged malicious", d))
	}

	return facts
}

// renderBundle formats the evidence into the fixed structured context
// the model answers from. Every section appears even when empty so the
// model can state what is missing instead of speculating.
func renderBundle(bundle *evidence.Bundle) string {
	var sb strings.Builder

	msg := bundle.Message
	fmt.Fprintf(&sb, "## %s\n", sectionMessage)
	fmt.Fprintf(&sb, "ID: %s\n", msg.ID)
	fmt.Fprintf(&sb, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&sb, "Sender: %s (domain %s)\n", bundle.Sender.Address, bundle.Sender.Domain)
	fmt.Fprintf(&sb, "Sent: %s\n", formatTime(msg.Timestamp))
	fmt.Fprintf(&sb, "Recipients: %d\n", len(msg.Recipients))
	if len(msg.Attachments) > 0 {
		fmt.Fprintf(&sb, "Attachments: %s\n", strings.Join(msg.Attachments, ", "))
	} else {
		sb.WriteString("Attachments: none\n")
	}
	if msg.Verdict != "" {
		fmt.Fprintf(&sb, "Verdict: %s\n", msg.Verdict)
	} else {
		sb.WriteString("Verdict: not analyzed\n")
	}
	fmt.Fprintf(&sb, "Threat score: %d\n", msg.ThreatScore)

	fmt.Fprintf(&sb, "\n## %s\n", sectionSenderHistory)
	if len(bundle.SenderHistory) == 0 {
		sb.WriteString("No prior messages from this sender.\n")
	} else {
		for _, h := range bundle.SenderHistory {
			line := fmt.Sprintf("- %s %q", formatTime(h.Timestamp), h.Subject)
			if len(h.Detections) > 0 {
				line += fmt.Sprintf(" [detections: %s]", strings.Join(h.Detections, ", "))
			}
			if h.Malicious {
				line += " [verdict: malicious]"
			}
			sb.WriteString(line + "\n")
		}
	}

	fmt.Fprintf(&sb, "\n## %s\n", sectionRelated)
	if len(bundle.RelatedMessages) == 0 {
		sb.WriteString("No related messages.\n")
	} else {
		for _, r := range bundle.RelatedMessages {
			fmt.Fprintf(&sb, "- %s %q shares %s (%s match)\n",
				formatTime(r.Timestamp), r.Subject, r.Shared, r.MatchType)
		}
	}

	fmt.Fprintf(&sb, "\n## %s\n", sectionInfrastructure)
	if len(bundle.Infrastructure) == 0 {
		sb.WriteString("No referenced domains.\n")
	} else {
		for _, d := range bundle.Infrastructure {
			status := "not flagged"
			if d.Malicious {
				status = "FLAGGED MALICIOUS"
			}
			fmt.Fprintf(&sb, "- %s: %s, referenced by %d messages\n", d.Domain, status, d.ReferenceCount)
		}
	}

	fmt.Fprintf(&sb, "\n## %s\n", sectionResources)
	if len(bundle.ResourceAnalysis) == 0 {
		sb.WriteString("No referenced resources.\n")
	} else {
		for _, r := range bundle.ResourceAnalysis {
			fmt.Fprintf(&sb, "- %s: %s\n", r.URL, scanVerdict(r))
		}
	}

	fmt.Fprintf(&sb, "\n## %s\n", sectionCampaigns)
	if len(bundle.CampaignMatches) == 0 {
		sb.WriteString("Not linked to any campaign.\n")
	} else {
		for _, c := range bundle.CampaignMatches {
			fmt.Fprintf(&sb, "- %s (%d other messages)\n", c.Name, c.MessageCount)
		}
	}

	fmt.Fprintf(&sb, "\n## %s\n", sectionDetections)
	if len(bundle.Detections) == 0 {
		sb.WriteString("No detections triggered by this message.\n")
	} else {
		for _, d := range bundle.Detections {
			fmt.Fprintf(&sb, "- %s (severity %s)\n", d.Type, d.Severity)
		}
	}

	return sb.String()
}

// scanVerdict distinguishes "never scanned" from "scanned and clean"
// from "scanned and malicious".
func scanVerdict(r evidence.ResourceRecord) string {
	switch {
	case !r.Scanned:
		return "not scanned"
	case r.Malicious:
		return "scanned and malicious"
	default:
		return "scanned and clean"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown time"
	}
	return t.UTC().Format(time.RFC3339)
}
