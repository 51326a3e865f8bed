package database

import (
	"html"
	"regexp"
	"strings"
)

// queryKeywords returns the positive terms of a search query, the ones a
// highlighted excerpt should mark.
func queryKeywords(query string) []string {
	var kws []string
	for _, term := range strings.Fields(query) {
		if term == "OR" || strings.HasPrefix(term, "-") {
			continue
		}
		kws = append(kws, term)
	}
	return kws
}

// highlightHTML escapes text and wraps case-insensitive occurrences of the
// query's keywords in <span class="keyword">, mirroring the markup pgroonga
// produces on PostgreSQL.
func highlightHTML(text, query string) string {
	kws := queryKeywords(query)
	if len(kws) == 0 {
		return html.EscapeString(text)
	}
	quoted := make([]string, len(kws))
	for i, kw := range kws {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	re := regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)

	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		b.WriteString(html.EscapeString(text[last:loc[0]]))
		b.WriteString(`<span class="keyword">`)
		b.WriteString(html.EscapeString(text[loc[0]:loc[1]]))
		b.WriteString(`</span>`)
		last = loc[1]
	}
	b.WriteString(html.EscapeString(text[last:]))
	return b.String()
}
