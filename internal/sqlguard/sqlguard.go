// Package sqlguard gates candidate SQL text before it may reach the database.
// It is a conservative lexical check, not a parser: only a single read-only
// SELECT (optionally behind a WITH chain) passes, and anything the scanner
// cannot account for is rejected.
package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
)

// Verdict is the outcome of validating one candidate statement. A rejection
// always carries a human-readable Reason; Rule is a stable label for metrics.
type Verdict struct {
	Accepted bool
	Reason   string
	Rule     string
}

const (
	RuleTooLong      = "too_long"
	RuleEmpty        = "empty"
	RuleLex          = "lex"
	RuleWriteKeyword = "write_keyword"
	RuleStacked      = "stacked"
	RuleNotSelect    = "not_select"
)

// Keywords that must never appear as whole words outside literals, regardless
// of position. DO, MERGE and INTO are included beyond the classic write set:
// the first two can mutate state on PostgreSQL, and SELECT ... INTO creates a
// table.
var bannedKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "alter": {},
	"truncate": {}, "grant": {}, "revoke": {}, "create": {}, "exec": {},
	"call": {}, "copy": {}, "attach": {}, "vacuum": {}, "do": {}, "merge": {},
	"into": {},
}

const DefaultMaxStatementLength = 8192

type Validator struct {
	MaxStatementLength int
}

func New(maxStatementLength int) *Validator {
	if maxStatementLength <= 0 {
		maxStatementLength = DefaultMaxStatementLength
	}
	return &Validator{MaxStatementLength: maxStatementLength}
}

// Normalize trims surrounding whitespace and at most one trailing semicolon.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimSuffix(trimmed, ";")
	return strings.TrimSpace(trimmed)
}

func (v *Validator) Validate(candidate string) Verdict {
	if len(candidate) > v.MaxStatementLength {
		return reject(RuleTooLong, fmt.Sprintf("statement exceeds maximum length of %d bytes", v.MaxStatementLength))
	}

	tokens, err := scan(candidate)
	if err != nil {
		return reject(RuleLex, err.Error())
	}
	if len(tokens) == 0 {
		return reject(RuleEmpty, "statement is empty")
	}

	for _, tok := range tokens {
		if tok.kind != wordToken {
			continue
		}
		if _, banned := bannedKeywords[tok.text]; banned {
			return reject(RuleWriteKeyword, fmt.Sprintf("write keyword %s is not permitted", strings.ToUpper(tok.text)))
		}
	}

	// A semicolon may only terminate the statement. Anything after it is
	// statement stacking.
	for i, tok := range tokens {
		if tok.kind == symbolToken && tok.text == ";" && i != len(tokens)-1 {
			return reject(RuleStacked, "multiple statements are not permitted")
		}
	}

	first := tokens[0]
	if first.kind != wordToken {
		return reject(RuleNotSelect, "statement must begin with SELECT")
	}
	switch first.text {
	case "select":
		return Verdict{Accepted: true}
	case "with":
		if reason := walkCTEChain(tokens[1:]); reason != "" {
			return reject(RuleNotSelect, reason)
		}
		return Verdict{Accepted: true}
	default:
		return reject(RuleNotSelect, fmt.Sprintf("only SELECT statements are permitted, got %s", strings.ToUpper(first.text)))
	}
}

func reject(rule, reason string) Verdict {
	return Verdict{Accepted: false, Reason: reason, Rule: rule}
}

// walkCTEChain consumes "name [(cols)] AS [[NOT] MATERIALIZED] (body)" groups
// separated by commas and requires the trailing statement to start with
// SELECT. Returns a rejection reason, or "" when the chain is well formed.
func walkCTEChain(tokens []token) string {
	i := 0
	if i < len(tokens) && tokens[i].kind == wordToken && tokens[i].text == "recursive" {
		i++
	}
	for {
		if i >= len(tokens) || tokens[i].kind != wordToken {
			return "malformed WITH clause"
		}
		i++ // CTE name

		var ok bool
		if i < len(tokens) && tokens[i].kind == symbolToken && tokens[i].text == "(" {
			if i, ok = skipParenGroup(tokens, i); !ok {
				return "malformed WITH clause"
			}
		}
		if i >= len(tokens) || tokens[i].kind != wordToken || tokens[i].text != "as" {
			return "malformed WITH clause"
		}
		i++
		if i < len(tokens) && tokens[i].kind == wordToken && tokens[i].text == "not" {
			i++
		}
		if i < len(tokens) && tokens[i].kind == wordToken && tokens[i].text == "materialized" {
			i++
		}
		if i >= len(tokens) || tokens[i].kind != symbolToken || tokens[i].text != "(" {
			return "malformed WITH clause"
		}
		if i, ok = skipParenGroup(tokens, i); !ok {
			return "malformed WITH clause"
		}

		if i < len(tokens) && tokens[i].kind == symbolToken && tokens[i].text == "," {
			i++
			continue
		}
		break
	}
	if i >= len(tokens) || tokens[i].kind != wordToken || tokens[i].text != "select" {
		return "WITH chain must terminate in a SELECT statement"
	}
	return ""
}

func skipParenGroup(tokens []token, open int) (int, bool) {
	depth := 0
	for i := open; i < len(tokens); i++ {
		if tokens[i].kind != symbolToken {
			continue
		}
		switch tokens[i].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return len(tokens), false
}

type tokenKind int

const (
	wordToken tokenKind = iota
	symbolToken
)

type token struct {
	kind tokenKind
	text string // lowercased for words
}

// scan splits candidate text into word and symbol tokens, dropping string
// literals, quoted identifiers and comments. Unterminated constructs and
// dollar quoting are errors so that validation fails closed.
func scan(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'':
			end, ok := skipQuoted(runes, i, '\'')
			if !ok {
				return nil, fmt.Errorf("unterminated string literal")
			}
			i = end
		case r == '"':
			end, ok := skipQuoted(runes, i, '"')
			if !ok {
				return nil, fmt.Errorf("unterminated quoted identifier")
			}
			i = end
		case r == '$':
			return nil, fmt.Errorf("dollar-quoted strings are not permitted")
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			end, ok := skipBlockComment(runes, i)
			if !ok {
				return nil, fmt.Errorf("unterminated block comment")
			}
			i = end
		case isWordStart(r):
			start := i
			for i < len(runes) && isWordRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: wordToken, text: strings.ToLower(string(runes[start:i]))})
		default:
			tokens = append(tokens, token{kind: symbolToken, text: string(r)})
			i++
		}
	}
	return tokens, nil
}

func skipQuoted(runes []rune, open int, quote rune) (int, bool) {
	i := open + 1
	for i < len(runes) {
		if runes[i] == quote {
			// Doubled quote is an escaped quote, not a terminator.
			if i+1 < len(runes) && runes[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, true
		}
		i++
	}
	return len(runes), false
}

// skipBlockComment honors PostgreSQL's nested block comments.
func skipBlockComment(runes []rune, open int) (int, bool) {
	depth := 0
	i := open
	for i < len(runes) {
		if i+1 < len(runes) && runes[i] == '/' && runes[i+1] == '*' {
			depth++
			i += 2
			continue
		}
		if i+1 < len(runes) && runes[i] == '*' && runes[i+1] == '/' {
			depth--
			i += 2
			if depth == 0 {
				return i, true
			}
			continue
		}
		i++
	}
	return len(runes), false
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
