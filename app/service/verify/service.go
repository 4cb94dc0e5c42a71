package verify

import (
	"fmt"
	"strings"

	"newschat/app/service/news"

	"github.com/samber/do"
)

// Heuristic source scoring. The weights and the +10 fact-checker boost
// are hard-coded editorial choices, not a validated model; treat the
// resulting confidence as a rough hint only.
const (
	factCheckerScore     = 0.95
	highCredibilityScore = 0.9
	defaultScore         = 0.7

	factCheckerBoost = 10
	noEvidenceScore  = 30
	maxConfidence    = 100
)

var factCheckers = []string{
	"factcheck.org", "politifact", "snopes", "fullfact",
	"reuters.com/fact-check", "apnews.com/hub/fact-check",
}

var highCredibility = []string{
	"reuters", "apnews", "bbc", "npr", "pbs", "washingtonpost",
	"nytimes", "wsj", "economist", "nature", "science", "nationalgeographic",
}

type SourceAnalysis struct {
	SourceName string  `json:"sourceName"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
}

type ClaimReport struct {
	Claim              string           `json:"claim"`
	ConfidenceScore    int              `json:"confidenceScore"`
	FactCheckerSupport bool             `json:"factCheckerSupport"`
	Sources            []SourceAnalysis `json:"sources"`
}

type Service struct{}

func New(_ *do.Injector) (*Service, error) {
	return &Service{}, nil
}

func (s *Service) AnalyzeSource(source string) SourceAnalysis {
	lowered := strings.ToLower(source)

	for _, fc := range factCheckers {
		if strings.Contains(lowered, fc) {
			return SourceAnalysis{SourceName: source, Category: "fact-checker", Score: factCheckerScore}
		}
	}

	for _, hc := range highCredibility {
		if strings.Contains(lowered, hc) {
			return SourceAnalysis{SourceName: source, Category: "high-credibility", Score: highCredibilityScore}
		}
	}

	return SourceAnalysis{SourceName: source, Category: "standard", Score: defaultScore}
}

// CheckClaim scores a claim against the articles: mean source weight
// of the relevant ones, scaled to 0-100, boosted when a fact-checker
// is among them.
func (s *Service) CheckClaim(claim string, articles []news.Article) ClaimReport {
	lowered := strings.ToLower(claim)

	var sources []SourceAnalysis

	for _, a := range articles {
		titleMatch := a.Title != "" && strings.Contains(strings.ToLower(a.Title), lowered)
		descMatch := a.Description != "" && strings.Contains(strings.ToLower(a.Description), lowered)
		if !titleMatch && !descMatch {
			continue
		}

		analysis := s.AnalyzeSource(a.Source)
		analysis.Title = a.Title
		analysis.URL = a.URL
		sources = append(sources, analysis)
	}

	report := ClaimReport{Claim: claim, Sources: sources}

	if len(sources) == 0 {
		report.ConfidenceScore = noEvidenceScore
		return report
	}

	total := 0.0
	for _, src := range sources {
		total += src.Score

		if src.Category == "fact-checker" {
			report.FactCheckerSupport = true
		}
	}

	score := int(total / float64(len(sources)) * 100)
	if report.FactCheckerSupport {
		score += factCheckerBoost
	}
	if score > maxConfidence {
		score = maxConfidence
	}

	report.ConfidenceScore = score
	return report
}

// PromptContext renders the report for inclusion in a generation
// prompt.
func (r ClaimReport) PromptContext() string {
	var builder strings.Builder

	builder.WriteString("Claim verification results:\n\n")
	builder.WriteString(fmt.Sprintf("Claim: %q\n", r.Claim))
	builder.WriteString(fmt.Sprintf("Confidence score: %d%%\n", r.ConfidenceScore))

	support := "No"
	if r.FactCheckerSupport {
		support = "Yes"
	}
	builder.WriteString(fmt.Sprintf("Fact-checker support: %s\n", support))

	if len(r.Sources) > 0 {
		builder.WriteString("\nSource analysis:\n")
		for _, src := range r.Sources {
			builder.WriteString(fmt.Sprintf("- %s (%s, reliability: %.0f%%)\n",
				src.SourceName, src.Category, src.Score*100))
		}
	}

	return builder.String()
}
