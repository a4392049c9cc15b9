package tryit

import (
	"maps"
	"slices"
	"strings"
)

// Curl renders req as an equivalent curl command line, one option per
// line.
func Curl(req *Request) string {
	var b strings.Builder
	b.WriteString("curl -X ")
	b.WriteString(req.Method)

	for _, name := range slices.Sorted(maps.Keys(req.Headers)) {
		for _, value := range req.Headers[name] {
			b.WriteString(" \\\n  -H ")
			b.WriteString(doubleQuote(name + ": " + value))
		}
	}

	switch {
	case req.Form != nil:
		for _, f := range req.Form {
			b.WriteString(" \\\n  -F ")
			if f.IsFile() {
				b.WriteString(doubleQuote(f.Name + "=@" + f.Filename))
			} else {
				b.WriteString(doubleQuote(f.Name + "=" + f.Value))
			}
		}
	case req.Body != nil:
		b.WriteString(" \\\n  -d ")
		b.WriteString(singleQuote(string(req.Body)))
	}

	b.WriteString(" \\\n  ")
	b.WriteString(doubleQuote(req.URL))

	return b.String()
}

func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var doubleQuoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")

func doubleQuote(s string) string {
	return `"` + doubleQuoteEscaper.Replace(s) + `"`
}
