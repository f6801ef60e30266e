package nettrack

import (
	"regexp"
	"strings"
	"sync"
)

// rePrefix switches a pattern from glob to raw regular expression syntax.
const rePrefix = "re:"

var (
	patternMu    sync.Mutex
	patternCache = make(map[string]*regexp.Regexp)
)

// MatchPattern reports whether s matches pattern. Patterns are globs where
// '*' matches any run of characters (including '/'), or full regular
// expressions when prefixed with "re:". Compiled patterns are cached; an
// invalid pattern never matches.
func MatchPattern(pattern, s string) bool {
	patternMu.Lock()
	re, ok := patternCache[pattern]
	if !ok {
		re = compilePattern(pattern)
		patternCache[pattern] = re
	}
	patternMu.Unlock()
	if re == nil {
		return false
	}
	return re.MatchString(s)
}

func compilePattern(pattern string) *regexp.Regexp {
	var expr string
	if strings.HasPrefix(pattern, rePrefix) {
		expr = strings.TrimPrefix(pattern, rePrefix)
	} else {
		parts := strings.Split(pattern, "*")
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		expr = "^" + strings.Join(parts, ".*") + "$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	return re
}
