package normalize

import (
	"strings"

	"golang.org/x/net/html"
)

// Text is the plain-text form of a message used by every downstream
// stage. Original keeps case for proper-noun extraction; Folded is the
// lower-cased copy used for matching.
type Text struct {
	Subject  string
	Original string
	Folded   string
}

// Normalize cleans a raw subject and body into plain text: HTML markup
// and quoted-reply chrome are stripped and whitespace runs collapse to
// single spaces. Always returns a (possibly empty) Text.
func Normalize(rawSubject, rawBody string) Text {
	subject := collapseWhitespace(stripHTML(rawSubject))
	body := collapseWhitespace(stripQuoted(stripHTML(rawBody)))

	original := subject
	if body != "" {
		if original != "" {
			original += " "
		}
		original += body
	}

	return Text{
		Subject:  subject,
		Original: original,
		Folded:   strings.ToLower(original),
	}
}

// stripHTML extracts the text content from HTML markup. Plain text
// passes through unchanged (the parser treats it as a lone text node).
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		// Fallback to the raw string if parsing fails
		return s
	}

	var buf strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
		}
		if n.Type == html.ElementNode && (n.Data == "style" || n.Data == "script") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
	}
	extractText(doc)
	return buf.String()
}

// stripQuoted drops quoted-reply lines: ">"-prefixed quotes, the
// "On ... wrote:" attribution line, forwarded-message separators and
// everything after a signature delimiter.
func stripQuoted(s string) string {
	lines := strings.Split(s, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if isAttribution(trimmed) || isForwardMarker(trimmed) {
			continue
		}
		if trimmed == "--" {
			// Signature delimiter; nothing below it is message content
			break
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isAttribution(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "on ") && strings.HasSuffix(lower, "wrote:")
}

func isForwardMarker(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "-----original message") ||
		strings.HasPrefix(lower, "---------- forwarded message")
}

// collapseWhitespace reduces every run of whitespace to a single space
// and trims the ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
