package util

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	tagPattern = regexp.MustCompile(`<[^<]+?>`)

	// Block and inline constructs that carry meaning in plain text. Everything else is
	// removed by tagPattern.
	plainTextReplacer = strings.NewReplacer(
		"<p>", "", "</p>", "\n",
		"<ul>", "", "</ul>", "",
		"<ol>", "", "</ol>", "",
		"<li>", "- ", "</li>", "\n",
		"<br>", "\n", "<br/>", "\n",
		"<span>", "", "</span>", "",
		"<strong>", "", "</strong>", "",
		"<b>", "", "</b>", "",
		"<em>", "", "</em>", "",
		"<i>", "", "</i>", "",
		"&nbsp;", " ",
		// The serializer also escapes quotes; only &, < and > stay escaped.
		"&#34;", `"`, "&#39;", "'",
	)
)

// CleanHTMLContent turns a rich-text task description into a single line of plain text.
// Non-string input yields "". Malformed markup never fails; the parser's best effort is used.
// Entities are left escaped as the parser re-serializes them, so the output is stable
// under a second pass.
func CleanHTMLContent(content any) string {
	s, ok := content.(string)
	if !ok {
		return ""
	}

	markup := s
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
		doc.Find("[style]").RemoveAttr("style")
		if rendered, err := doc.Find("body").Html(); err == nil {
			markup = rendered
		}
	}

	text := plainTextReplacer.Replace(markup)
	text = tagPattern.ReplaceAllString(text, "")

	return strings.Join(strings.Fields(text), " ")
}
