// Package secrets redacts credentials from document text before it is
// segmented and stored, using the gitleaks rule set.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding describes one redacted secret. The secret itself is not kept.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
}

// Result is redacted text plus what was removed.
type Result struct {
	Text     string
	Findings []Finding
}

// Count returns the number of redacted secrets.
func (r Result) Count() int { return len(r.Findings) }

// Allowlist holds content patterns that are never redacted.
type Allowlist struct {
	Regexes []string
}

// Redactor replaces detected secrets with [REDACTED:<rule-id>].
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a redactor on the default gitleaks rules. allowlistPath may be
// empty; a path that does not exist is a configuration error.
func New(allowlistPath string) (*Redactor, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: loading gitleaks rules: %v", ragerr.ErrConfiguration, err)
	}

	if allowlistPath != "" {
		allow, err := LoadAllowlist(allowlistPath)
		if err != nil {
			return nil, err
		}
		applyAllowlist(&detector.Config, allow)
	}

	return &Redactor{detector: detector}, nil
}

// Redact scans text and replaces every finding.
func (r *Redactor) Redact(text string) Result {
	r.mu.Lock()
	found := r.detector.DetectString(text)
	r.mu.Unlock()

	findings := make([]Finding, 0, len(found))
	secrets := make(map[string]string, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		findings = append(findings, Finding{RuleID: f.RuleID, Description: f.Description, Line: f.StartLine})
		secrets[f.Secret] = f.RuleID
	}

	return Result{Text: replace(text, secrets), Findings: findings}
}

// replace substitutes longer secrets first so a secret that contains
// another is not left half redacted.
func replace(text string, secrets map[string]string) string {
	keys := make([]string, 0, len(secrets))
	for s := range secrets {
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, s := range keys {
		text = strings.ReplaceAll(text, s, "[REDACTED:"+secrets[s]+"]")
	}
	return text
}

// LoadAllowlist reads a gitleaks-style TOML file:
//
//	[allowlist]
//	regexes = ["EXAMPLE_KEY_[0-9]+"]
func LoadAllowlist(path string) (*Allowlist, error) {
	var config struct {
		Allowlist struct {
			Regexes []string
		}
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: secrets allowlist %s does not exist", ragerr.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: parsing secrets allowlist %s: %v", ragerr.ErrConfiguration, path, err)
	}

	for _, pattern := range config.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid allowlist pattern %q in %s: %v", ragerr.ErrConfiguration, pattern, path, err)
		}
	}

	return &Allowlist{Regexes: config.Allowlist.Regexes}, nil
}

func applyAllowlist(cfg *gitleaksConfig.Config, allow *Allowlist) {
	global := &gitleaksConfig.Allowlist{Description: "ragd allowlist"}
	for _, pattern := range allow.Regexes {
		// Validated by LoadAllowlist.
		re := regexp.MustCompile(pattern)
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allow.Regexes...)
	cfg.Allowlists = append(cfg.Allowlists, global)
}
