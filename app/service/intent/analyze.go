package intent

import (
	"regexp"
	"strings"
)

// Secondary classification, same first-match-wins shape as Classify.
// The per-intent weights here are pattern tables only, no scoring.

type intentRule struct {
	intent  PrimaryIntent
	pattern *regexp.Regexp
}

var intentRules = []intentRule{
	{IntentGreeting, regexp.MustCompile(`(?i)^(hi|hello|hey|greetings|howdy|good (morning|afternoon|evening))( there)?!?$`)},
	{IntentFactCheck, regexp.MustCompile(`(?i)fact[- ]?check|verify|is (it|this) true|accurate|confirm|debunk|misinformation`)},
	{IntentNewsQuery, regexp.MustCompile(`(?i)(news|headline|latest|recent|update|report|story|current events|what('s| is) happening)`)},
	{IntentOpinion, regexp.MustCompile(`(?i)what( do)? you think|opinion|stance|perspective|view`)},
	{IntentTopicQuery, regexp.MustCompile(`(?i)(tell|inform) me about|what (is|are)|explain|describe|details on`)},
	{IntentThankYou, regexp.MustCompile(`(?i)^(thanks|thank you|thx|ty)!?$`)},
	{IntentFarewell, regexp.MustCompile(`(?i)^(bye|goodbye|see you|farewell|later)!?$`)},
}

var topicCategories = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"politics", regexp.MustCompile(`(?i)politics|election|president|congress|senate|government|democrat|republican`)},
	{"conflict", regexp.MustCompile(`(?i)war|conflict|military|attack|invasion|troops`)},
	{"technology", regexp.MustCompile(`(?i)tech|technology|ai|artificial intelligence|quantum`)},
	{"economy", regexp.MustCompile(`(?i)economy|economic|finance|stock|market|inflation|recession|unemployment|federal reserve`)},
	{"health", regexp.MustCompile(`(?i)health|pandemic|vaccine|medical|disease|virus|healthcare`)},
	{"sports", regexp.MustCompile(`(?i)sports|football|basketball|baseball|soccer|tennis|golf`)},
	{"entertainment", regexp.MustCompile(`(?i)movie|film|television|actor|actress|celebrity|music|album`)},
}

var (
	questionPattern = regexp.MustCompile(`(?i)^(what|how|why|when|where|who|is|are|can|could|should|would|do|does|did)`)
	claimPattern    = regexp.MustCompile(`(?i)claim|said|stated|reported|according to|says|announced`)
	newsQueryRule   = intentRules[2].pattern
)

func (s *Service) Analyze(message string) Analysis {
	normalized := normalize(message)

	primary := IntentGeneral
	for _, r := range intentRules {
		if r.pattern.MatchString(normalized) {
			primary = r.intent
			break
		}
	}

	var topics []string
	for _, category := range topicCategories {
		if category.pattern.MatchString(normalized) {
			topics = append(topics, category.name)
		}
	}

	return Analysis{
		PrimaryIntent: primary,
		Topics:        topics,
		HasQuestion:   containsQuestion(normalized),
		IsNewsRelated: newsQueryRule.MatchString(normalized) || len(topics) > 0,
		ContainsClaim: claimPattern.MatchString(normalized),
	}
}

func normalize(message string) string {
	return strings.TrimSpace(strings.ToLower(message))
}

func containsQuestion(normalized string) bool {
	if questionPattern.MatchString(normalized) {
		return true
	}

	for _, r := range normalized {
		if r == '?' {
			return true
		}
	}

	return false
}
