package alerting

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Matches reports whether every condition holds for the event fields.
//
// A condition whose field is absent from the event is skipped. A list value
// requires the event value to be one of its members. A string containing '*'
// is an anchored wildcard where '*' matches any run of characters. Anything
// else must equal the event value. Values are compared by their string form,
// and a list-valued event field matches if any element does.
func Matches(conditions map[string]any, event map[string]any) bool {
	for field, want := range conditions {
		got, ok := event[field]
		if !ok || got == nil {
			continue
		}
		if !fieldMatches(want, got) {
			return false
		}
	}
	return true
}

func fieldMatches(want, got any) bool {
	if vals, ok := asList(got); ok {
		for _, v := range vals {
			if fieldMatches(want, v) {
				return true
			}
		}
		return false
	}
	gs := fmt.Sprint(got)
	if opts, ok := asList(want); ok {
		for _, o := range opts {
			if scalarMatches(o, gs) {
				return true
			}
		}
		return false
	}
	return scalarMatches(want, gs)
}

func scalarMatches(want any, got string) bool {
	ws := fmt.Sprint(want)
	if strings.Contains(ws, "*") {
		re, err := wildcard(ws)
		return err == nil && re.MatchString(got)
	}
	return ws == got
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

var wildcardCache sync.Map // pattern -> *regexp.Regexp

// wildcard compiles "a*b" to ^a.*b$ with everything but '*' quoted.
func wildcard(pattern string) (*regexp.Regexp, error) {
	if re, ok := wildcardCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return nil, err
	}
	wildcardCache.Store(pattern, re)
	return re, nil
}

// validateConditions rejects condition values the matcher cannot compare.
func validateConditions(conditions map[string]any) error {
	for field, v := range conditions {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("empty condition field")
		}
		if list, ok := asList(v); ok {
			if len(list) == 0 {
				return fmt.Errorf("condition %q has an empty list", field)
			}
			for _, item := range list {
				if !isScalar(item) {
					return fmt.Errorf("condition %q: list items must be scalars", field)
				}
			}
			continue
		}
		if !isScalar(v) {
			return fmt.Errorf("condition %q must be a scalar or a list of scalars", field)
		}
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return true
	}
	return false
}
