package alerting

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/anthropic/agentwatch/internal/errs"
)

// Template formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ParseFormat validates a template format. An empty string is text.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatMarkdown, FormatHTML:
		return f, nil
	default:
		return "", errs.InvalidState("unknown template format %q (expected text, markdown or html)", s)
	}
}

// Vars are the named values a template can reference.
type Vars map[string]string

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// segment is either literal text or a placeholder name.
type segment struct {
	text string
	name string
}

// Renderer is a parsed subject/body template. Placeholders are resolved in a
// single pass and substituted values are escaped for the format, so a value
// can never introduce markup or further placeholders.
type Renderer struct {
	format  string
	subject []segment
	body    []segment
}

// NewRenderer parses subject and body.
func NewRenderer(subject, body, format string) (*Renderer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return &Renderer{format: f, subject: parse(subject), body: parse(body)}, nil
}

func parse(tpl string) []segment {
	var segs []segment
	last := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(tpl, -1) {
		if m[0] > last {
			segs = append(segs, segment{text: tpl[last:m[0]]})
		}
		segs = append(segs, segment{name: tpl[m[2]:m[3]]})
		last = m[1]
	}
	if last < len(tpl) {
		segs = append(segs, segment{text: tpl[last:]})
	}
	return segs
}

// Placeholders lists the distinct names referenced by the template.
func (r *Renderer) Placeholders() []string {
	seen := map[string]bool{}
	for _, s := range append(append([]segment(nil), r.subject...), r.body...) {
		if s.name != "" {
			seen[s.name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Render substitutes vars plus the built-ins now, date and time. Unknown
// placeholders render empty. The subject is always rendered as plain text.
func (r *Renderer) Render(vars Vars, now time.Time) (subject, body string) {
	builtins := Vars{
		"now":  now.UTC().Format(time.RFC3339),
		"date": now.UTC().Format("2006-01-02"),
		"time": now.UTC().Format("15:04:05"),
	}
	lookup := func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return builtins[name]
	}
	return r.expand(r.subject, lookup, FormatText), r.expand(r.body, lookup, r.format)
}

func (r *Renderer) expand(segs []segment, lookup func(string) string, format string) string {
	var b strings.Builder
	for _, s := range segs {
		if s.name == "" {
			b.WriteString(s.text)
			continue
		}
		b.WriteString(escape(lookup(s.name), format))
	}
	return b.String()
}

func escape(v, format string) string {
	if format == FormatHTML {
		return html.EscapeString(v)
	}
	return stripControl(v)
}

// stripControl drops control characters other than newline and tab.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// AlertVars flattens an alert into template variables. Metadata keys are
// exposed both bare and under "metadata.", nested maps with dotted keys, and
// lists joined with ", ".
func AlertVars(a Alert) Vars {
	v := Vars{}
	flatten(v, "", a.Metadata)
	flatten(v, "metadata.", a.Metadata)
	v["type"] = a.Type
	v["event"] = a.Type
	v["message"] = a.Message
	v["priority"] = a.Priority
	v["projectPath"] = a.ProjectPath
	v["agentId"] = a.AgentID
	return v
}

func flatten(dst Vars, prefix string, m map[string]any) {
	for k, val := range m {
		key := prefix + k
		switch x := val.(type) {
		case map[string]any:
			flatten(dst, key+".", x)
		case nil:
			dst[key] = ""
		default:
			if list, ok := asList(val); ok {
				parts := make([]string, len(list))
				for i, item := range list {
					parts[i] = fmt.Sprint(item)
				}
				dst[key] = strings.Join(parts, ", ")
				continue
			}
			dst[key] = fmt.Sprint(x)
		}
	}
}
