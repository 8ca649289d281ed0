package mailer

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	htmlTagRe        = regexp.MustCompile(`(?i)<(html|body|div|p|br|table|span|a|ul|li|h[1-6])[\s/>]`)
	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeHTML reports whether s appears to be an HTML document or fragment.
func LooksLikeHTML(s string) bool {
	return htmlTagRe.MatchString(s)
}

// ToText renders an HTML email body as readable plain text. Markdown output
// is used because it keeps lists and emphasis legible in mail clients and
// model prompts alike.
func ToText(htmlContent string) string {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	out, err := converter.ConvertString(htmlContent)
	if err != nil {
		out = walkText(htmlContent)
	}
	out = excessiveLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// walkText is the fallback renderer: plain text nodes with line breaks at
// block elements.
func walkText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	var text strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head":
				return
			case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "table":
				text.WriteString("\n")
			case "li":
				text.WriteString("\n- ")
			case "td", "th":
				text.WriteString(" | ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			extract(child)
		}
	}
	extract(doc)
	return text.String()
}
