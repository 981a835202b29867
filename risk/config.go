package risk

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use strings like "10m".
type Duration time.Duration

// UnmarshalYAML parses either a duration string ("10m", "90s") or an
// integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the tunable heuristics behind the factor catalog. The zero
// value is not usable; start from DefaultConfig and override fields, or
// load overrides from YAML with LoadConfig.
type Config struct {
	// InternalDomains is the allow-list of domains considered internal.
	// A sender outside this list fires the externalDomain factor.
	InternalDomains []string `yaml:"internal_domains"`

	// ProtectedDomains are the domains checked for typosquatting
	// lookalikes among referenced resources.
	ProtectedDomains []string `yaml:"protected_domains"`

	// SuspiciousExtensions are attachment filename suffixes treated as
	// executable, script, or archive-adjacent.
	SuspiciousExtensions []string `yaml:"suspicious_extensions"`

	// URLShorteners are shortener hosts treated as suspicious.
	URLShorteners []string `yaml:"url_shorteners"`

	// SuspiciousTLDs are abused free top-level domains (with leading dot).
	SuspiciousTLDs []string `yaml:"suspicious_tlds"`

	// UrgencyWords, FinancialWords, AuthorityTitles, and
	// SocialEngineeringPhrases drive the linguistic factors. Matching is
	// case-insensitive over subject plus body.
	UrgencyWords             []string `yaml:"urgency_words"`
	FinancialWords           []string `yaml:"financial_words"`
	AuthorityTitles          []string `yaml:"authority_titles"`
	SocialEngineeringPhrases []string `yaml:"social_engineering_phrases"`

	// BusinessHoursStart and BusinessHoursEnd bound the working day in
	// UTC hours; messages outside fire afterHoursEmail.
	BusinessHoursStart int `yaml:"business_hours_start"`
	BusinessHoursEnd   int `yaml:"business_hours_end"`

	// RapidFireWindow is how far back to look for a burst of prior
	// messages from the same sender.
	RapidFireWindow Duration `yaml:"rapid_fire_window"`

	// RapidFireCount is how many prior messages inside the window fire
	// the rapidFireSequence factor.
	RapidFireCount int `yaml:"rapid_fire_count"`

	// CampaignSizeThreshold is the minimum number of other campaign
	// messages that fires the campaignSize factor.
	CampaignSizeThreshold int `yaml:"campaign_size_threshold"`
}

// DefaultConfig returns the compiled-in heuristics.
func DefaultConfig() Config {
	return Config{
		InternalDomains:  []string{"corp.example"},
		ProtectedDomains: []string{"corp.example", "paypal.com", "microsoft.com", "google.com"},
		SuspiciousExtensions: []string{
			".exe", ".scr", ".bat", ".cmd", ".com", ".pif",
			".js", ".vbs", ".ps1", ".jar", ".hta",
			".iso", ".img", ".zip", ".rar", ".7z",
		},
		URLShorteners: []string{
			"bit.ly", "tinyurl.com", "t.co", "goo.gl", "is.gd", "ow.ly", "rb.gy",
		},
		SuspiciousTLDs: []string{
			".tk", ".ml", ".ga", ".cf", ".gq", ".top", ".xyz", ".icu",
		},
		UrgencyWords: []string{
			"urgent", "immediately", "asap", "expire", "expires", "deadline",
			"act now", "final notice", "suspended", "last chance",
		},
		FinancialWords: []string{
			"payment", "invoice", "wire", "transfer", "bank", "account",
			"password", "credential", "gift card", "bitcoin", "routing",
		},
		AuthorityTitles: []string{
			"ceo", "cfo", "chief executive", "chief financial", "president",
			"director", "head of", "vp of", "general counsel",
		},
		SocialEngineeringPhrases: []string{
			"click here", "verify your account", "confirm your identity",
			"unusual activity", "keep this confidential", "do not share",
			"reply only to this", "are you available",
		},
		BusinessHoursStart:    8,
		BusinessHoursEnd:      18,
		RapidFireWindow:       Duration(10 * time.Minute),
		RapidFireCount:        2,
		CampaignSizeThreshold: 5,
	}
}

// LoadConfig reads YAML overrides from path and applies them on top of the
// defaults. Fields absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read risk config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse risk config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.BusinessHoursStart < 0 || c.BusinessHoursStart > 23 ||
		c.BusinessHoursEnd < 1 || c.BusinessHoursEnd > 24 ||
		c.BusinessHoursStart >= c.BusinessHoursEnd {
		return fmt.Errorf("invalid business hours %d..%d", c.BusinessHoursStart, c.BusinessHoursEnd)
	}
	if c.RapidFireWindow <= 0 {
		return fmt.Errorf("rapid_fire_window must be positive")
	}
	return nil
}
