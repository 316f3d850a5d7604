package extraction

import (
	"context"
	"regexp"
	"strings"
)

// Scorer assigns the confidence of a match produced by a heuristic branch.
type Scorer interface {
	Score(source, value string) float64
}

// FixedScorer returns a constant per branch. The numbers carry no statistical meaning.
type FixedScorer map[string]float64

var DefaultScores = FixedScorer{
	"email":         0.95,
	"website":       0.85,
	"phone":         0.8,
	"cost":          0.75,
	"company.label": 0.85,
	"company.legal": 0.7,
	"contact.label": 0.8,
	"email.domain":  0.4,
}

func (s FixedScorer) Score(source, value string) float64 {
	if v, ok := s[source]; ok {
		return v
	}
	return 0.5
}

var (
	reEmail   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	rePhone   = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	reWebsite = regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)+(?:/[^\s]*)?|https?://[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)+(?:/[^\s]*)?`)
	reCost    = regexp.MustCompile(`(?i)(?:[$€£]\s?\d[\d,]*(?:\.\d{1,2})?(?:\s?[kKmM]\b)?|\b\d[\d,]*(?:\.\d{1,2})?\s?(?:usd|eur|gbp|dollars|euros)\b)`)
	reCompany = regexp.MustCompile(`(?im)^\s*(?:company|organization|organisation|client|business)\s*(?:name)?\s*[:\-]\s*(.+?)\s*$`)
	reLegal   = regexp.MustCompile(`\b([A-Z][A-Za-z0-9&]*(?:\s+[A-Z][A-Za-z0-9&]*){0,4}\s+(?:Inc|LLC|Ltd|GmbH|Corp|Corporation|Company|Co|Group|Limited|S\.A|AG)\.?)(?:\s|,|$)`)
	reContact = regexp.MustCompile(`(?im)^\s*(?:contact|name|attn|attention)\s*(?:person)?\s*[:\-]\s*(.+?)\s*$`)
)

// freeMailDomains never name the company.
var freeMailDomains = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true, "outlook.com": true, "icloud.com": true, "proton.me": true,
}

// HeuristicExtractor matches regular expressions over the text.
type HeuristicExtractor struct {
	Scorer Scorer
}

func NewHeuristicExtractor(scorer Scorer) *HeuristicExtractor {
	if scorer == nil {
		scorer = DefaultScores
	}
	return &HeuristicExtractor{Scorer: scorer}
}

func (h *HeuristicExtractor) Name() string { return "heuristic" }

func (h *HeuristicExtractor) Extract(ctx context.Context, text string) ([]Field, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Field
	seen := map[string]bool{}
	add := func(name, source, value string) {
		value = strings.TrimSpace(strings.TrimRight(value, ".,;"))
		if value == "" || seen[name+"\x00"+value] {
			return
		}
		seen[name+"\x00"+value] = true
		out = append(out, Field{Name: name, Value: value, Confidence: h.Scorer.Score(source, value), Source: source})
	}

	emails := reEmail.FindAllString(text, -1)
	for _, m := range emails {
		add(FieldEmail, "email", strings.ToLower(m))
	}
	// Drop email hosts before matching websites.
	rest := reEmail.ReplaceAllString(text, " ")
	for _, m := range reWebsite.FindAllString(rest, -1) {
		add(FieldWebsite, "website", m)
	}
	for _, m := range rePhone.FindAllString(rest, -1) {
		if digits(m) >= 7 {
			add(FieldPhone, "phone", m)
		}
	}
	for _, m := range reCost.FindAllString(rest, -1) {
		add(FieldCost, "cost", m)
	}
	for _, m := range reCompany.FindAllStringSubmatch(text, -1) {
		add(FieldCompany, "company.label", m[1])
	}
	for _, m := range reLegal.FindAllStringSubmatch(text, -1) {
		add(FieldCompany, "company.legal", m[1])
	}
	for _, m := range reContact.FindAllStringSubmatch(text, -1) {
		add(FieldContact, "contact.label", m[1])
	}
	for _, e := range emails {
		if name := companyFromDomain(e); name != "" {
			add(FieldCompany, "email.domain", name)
		}
	}
	return out, nil
}

func digits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// companyFromDomain turns "jane@acme-labs.io" into "Acme Labs".
func companyFromDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(email[at+1:])
	if freeMailDomains[domain] {
		return ""
	}
	label, _, _ := strings.Cut(domain, ".")
	words := strings.FieldsFunc(label, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
