// Package parser extracts farm operations from free-text Discord messages.
//
// Members write variations of "Passaporte: 123 Guardou: 50x Alumínio"; the
// parser tolerates missing colons, short forms ("pass", "al") and reversed
// ordering. It is deliberately pattern-based, not a language model: anything
// it cannot match is simply not an actionable message.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pastelaria/aluminio-bot/internal/models"
)

// Result holds whatever could be extracted from one message. Identity is
// empty and Amount is zero when the respective pattern did not match; callers
// treat that as "not an actionable message", never as an error.
type Result struct {
	Identity string
	Amount   int
	Kind     models.Kind
}

// Actionable reports whether the message carried enough to attempt an update.
func (r Result) Actionable() bool {
	return r.Identity != "" && r.Amount > 0
}

// normalizeRe strips everything except word characters, whitespace, colons
// and "x" before matching. Accents are removed by the character class itself
// ("Alumínio" normalizes to "alumnio", which the material patterns accept).
var normalizeRe = regexp.MustCompile(`[^\w\s:x]`)

// Ordered pattern lists: first match wins.
var passportRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:passaporte|pass|id):\s*(\d+)`),
	regexp.MustCompile(`(?:passaporte|pass|id)\s+(\d+)`),
	regexp.MustCompile(`^(\d+)\s+(?:guardou|guardar|retirou|retirar)`),
}

var quantityRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:guardou|guardar|retirou|retirar):\s*(\d+)x\s*(?:aluminio|alumnio|al)`),
	regexp.MustCompile(`(\d+)x\s*(?:aluminio|alumnio|al)`),
	regexp.MustCompile(`(?:aluminio|alumnio|al)\s*(\d+)x`),
}

// Extract parses one raw message. Pure function, no side effects.
//
// The withdraw verbs are matched as substrings anywhere in the normalized
// text, so an identity that happens to contain a verb stem flips the kind;
// the behavior is long-standing and kept as is.
func Extract(text string) Result {
	normalized := normalizeRe.ReplaceAllString(strings.ToLower(text), "")

	res := Result{Kind: models.Deposit}
	if strings.Contains(normalized, "retirou") || strings.Contains(normalized, "retirar") {
		res.Kind = models.Withdraw
	}

	for _, re := range passportRes {
		if m := re.FindStringSubmatch(normalized); m != nil {
			res.Identity = strings.TrimSpace(m[1])
			break
		}
	}

	for _, re := range quantityRes {
		if m := re.FindStringSubmatch(normalized); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			res.Amount = n
			break
		}
	}

	return res
}
