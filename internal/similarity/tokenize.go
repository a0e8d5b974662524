package similarity

import (
	"strings"
	"unicode"
)

// stopWords are dropped before weighting. The list is the usual short
// English set; domain words such as "help" are deliberately kept.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all am an and any are as at
		be because been before being below between both but by
		can could did do does doing down during each few for from further
		had has have having he her here hers herself him himself his how
		i if in into is it its itself just me more most my myself
		no nor not now of off on once only or other our ours ourselves out over own
		same she should so some such than that the their theirs them themselves then
		there these they this those through to too under until up very
		was we were what when where which while who whom why will with would
		you your yours yourself yourselves`) {
		stopWords[w] = struct{}{}
	}
}

// Tokenize lower-cases s and splits it on anything that is not a letter
// or digit, dropping stop words. Case and punctuation never affect the
// result.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
