package irscrape

import (
	"path"
	"strings"
)

// docTypeRule maps one document-type tag to the keyword group that
// identifies it. Rules are evaluated in order, first match wins, so the
// table is the single source of truth for classification precedence.
type docTypeRule struct {
	Tag      string
	Keywords []string
}

// classificationRules is matched against link text first, then against
// the href with keyword spaces removed.
var classificationRules = []docTypeRule{
	{Tag: "10-K", Keywords: []string{"10-k", "annual report"}},
	{Tag: "10-Q", Keywords: []string{"10-q", "quarterly report"}},
	{Tag: "8-K", Keywords: []string{"8-k", "current report"}},
	{Tag: "Earnings Release", Keywords: []string{"earnings release", "results announcement"}},
	{Tag: "Presentation", Keywords: []string{"presentation", "slide deck", "investor deck", "webcast slides"}},
	{Tag: "Transcript", Keywords: []string{"transcript", "earnings call transcript"}},
	{Tag: "SEC Filings", Keywords: []string{"sec filings", "edgar filings"}},
}

// genericKeywords trigger the narrower fallback pass when no rule
// matched but the link still smells financial.
var genericKeywords = []string{"financials", "report", "filing", "investor", "quarterly", "annual"}

// documentExtensions are file suffixes treated as downloadable documents.
var documentExtensions = []string{".pdf", ".xls", ".xlsx", ".doc", ".docx", ".ppt", ".pptx"}

// fallbackRules is the narrower second pass applied to link text only.
var fallbackRules = []docTypeRule{
	{Tag: "10-K", Keywords: []string{"10-k"}},
	{Tag: "10-Q", Keywords: []string{"10-q"}},
	{Tag: "Earnings Release", Keywords: []string{"earnings"}},
	{Tag: "Presentation", Keywords: []string{"slide"}},
	{Tag: "Transcript", Keywords: []string{"transcript"}},
}

// genericDocTag is assigned when the fallback pass matches nothing more
// specific but the link carries a document extension.
const genericDocTag = "Financial Document"

// Classify assigns a document-type tag to a link. It is a pure function
// of (text, href): identical inputs always produce the identical tag,
// independent of discovery order. The second return is false for links
// that should be discarded.
func Classify(text, href string) (string, bool) {
	loweredText := strings.ToLower(strings.TrimSpace(text))
	loweredHref := strings.ToLower(href)

	for _, rule := range classificationRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(loweredText, kw) {
				return rule.Tag, true
			}
		}
	}
	// Link text was not descriptive; try the href with spaces stripped
	// from keywords ("annual report" matches "annualreport.pdf").
	for _, rule := range classificationRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(loweredHref, strings.ReplaceAll(kw, " ", "")) {
				return rule.Tag, true
			}
		}
	}

	if !containsAny(loweredText, genericKeywords) && !containsAny(loweredHref, genericKeywords) {
		return "", false
	}
	if !hasDocumentExtension(loweredHref) {
		return "", false
	}
	for _, rule := range fallbackRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(loweredText, kw) {
				return rule.Tag, true
			}
		}
	}
	return genericDocTag, true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func hasDocumentExtension(href string) bool {
	// Query strings would defeat path.Ext; cut them first.
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	ext := path.Ext(href)
	for _, known := range documentExtensions {
		if ext == known {
			return true
		}
	}
	return false
}
