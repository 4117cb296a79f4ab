// Package sms renders outbound message bodies from Liquid templates.
// The deterministic templates here are the fallback when AI drafting is
// disabled or unavailable; they are also the only path for compliance
// text (opt-out acknowledgements) which must never be paraphrased.
package sms

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Engine wraps a Liquid engine with SMS-domain filters and a parsed
// template cache. Safe for concurrent use.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewEngine builds an engine with the custom filter set registered.
func NewEngine() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

func (e *Engine) registerFilters() {
	// Default value filter: {{ first_name | default: "there" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	e.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// Title case: {{ parish | titlecase }}
	e.engine.RegisterFilter("titlecase", func(s string) string {
		return strings.Title(strings.ToLower(s))
	})

	// Truncate with ellipsis: {{ body | truncate: 160 }}
	e.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	// Whole-dollar currency with commas: {{ offer | currency }}.
	// Offers are rounded to the nearest $100 upstream, so cents are
	// never shown.
	e.engine.RegisterFilter("currency", func(value interface{}) string {
		var n int64
		switch v := value.(type) {
		case float64:
			n = int64(v)
		case float32:
			n = int64(v)
		case int:
			n = int64(v)
		case int64:
			n = v
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return v
			}
			n = int64(parsed)
		default:
			return fmt.Sprintf("%v", value)
		}
		return "$" + groupThousands(n)
	})

	// Acreage display: {{ acres | acres }} renders "11.5 acres",
	// "1 acre", or "" when the roll had no acreage.
	e.engine.RegisterFilter("acres", func(value interface{}) string {
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case float32:
			f = float64(v)
		case int:
			f = float64(v)
		case int64:
			f = float64(v)
		case nil:
			return ""
		default:
			return fmt.Sprintf("%v", value)
		}
		if f <= 0 {
			return ""
		}
		s := strconv.FormatFloat(f, 'f', 2, 64)
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
		if s == "1" {
			return "1 acre"
		}
		return s + " acres"
	})
}

func groupThousands(n int64) string {
	str := fmt.Sprintf("%d", n)
	neg := n < 0
	if neg {
		str = str[1:]
	}
	var b strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteRune(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// Parse compiles a template string and returns any syntax errors.
// Used to validate operator-supplied template overrides before save.
func (e *Engine) Parse(templateStr string) error {
	_, err := e.engine.ParseString(templateStr)
	return err
}

// Render processes a template with the given context. Parsed templates
// are cached under cacheKey when one is provided.
func (e *Engine) Render(cacheKey, templateStr string, ctx map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := e.cache.Load(cacheKey); ok {
			tpl := cached.(*liquid.Template)
			out, err := tpl.RenderString(ctx)
			if err != nil {
				return "", err
			}
			return collapseWhitespace(out), nil
		}
	}

	tpl, err := e.engine.ParseString(templateStr)
	if err != nil {
		return "", err
	}
	if cacheKey != "" {
		e.cache.Store(cacheKey, tpl)
	}

	out, err := tpl.RenderString(ctx)
	if err != nil {
		return "", err
	}
	return collapseWhitespace(out), nil
}

// ClearCache drops all parsed templates. Called when operator template
// overrides change.
func (e *Engine) ClearCache() {
	e.cache.Range(func(key, _ interface{}) bool {
		e.cache.Delete(key)
		return true
	})
}

// collapseWhitespace squeezes the runs of spaces and newlines that
// Liquid control tags leave behind. Multi-line templates (call script)
// keep their line breaks; single-line SMS bodies come out clean.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		out = append(out, line)
	}
	joined := strings.Join(out, "\n")
	for strings.Contains(joined, "\n\n\n") {
		joined = strings.ReplaceAll(joined, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(joined)
}

// Segments reports how many SMS segments a body occupies under the
// common 160/153 GSM-7 split. Used for send logging only.
func Segments(body string) int {
	n := len(body)
	if n == 0 {
		return 0
	}
	if n <= 160 {
		return 1
	}
	return (n + 152) / 153
}
