// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package privacy replaces personally identifiable values in free text with
// reversible placeholder tokens and restores them afterwards.
package privacy

import (
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// MaxScanBytes caps the size of a single text the detector will examine.
// Larger texts are refused rather than passed through unscanned.
const MaxScanBytes = 1 << 20

// withheld replaces the whole text when Redact cannot scan it.
const withheld = "[UNSCANNED_REDACTED]"

// Match is a claimed span of sensitive text. Start and End are byte offsets.
type Match struct {
	Category Category
	Rule     string
	Start    int
	End      int
	Value    string
}

// Detector finds sensitive values and swaps them for vault tokens.
// A Detector holds no per-request state and is safe for concurrent use.
type Detector struct {
	rules  []Rule
	logger *slog.Logger
}

// NewDetector builds a detector for the given categories. Precedence always
// follows the fixed category order, whatever order enabled is given in.
// A nil or empty enabled list enables every category.
func NewDetector(enabled []Category, logger *slog.Logger) (*Detector, error) {
	if len(enabled) == 0 {
		enabled = Categories()
	}
	for _, c := range enabled {
		if _, err := ParseCategory(string(c)); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{rules: rulesFor(enabled), logger: logger}, nil
}

// Scan returns the non-overlapping sensitive spans in text ordered by
// claim order: category precedence first, then position.
//
// Scan fails closed. Text over MaxScanBytes is refused with
// CodePrivacyInputTooLarge, and a pattern that cannot finish (match timeout)
// fails the whole scan with CodePrivacyScanFailure. Neither error nor log
// line carries any part of text.
func (d *Detector) Scan(text string) ([]Match, error) {
	if text == "" {
		return nil, nil
	}
	if len(text) > MaxScanBytes {
		return nil, cloakerr.Errorf(cloakerr.CodePrivacyInputTooLarge,
			"text of %d bytes exceeds the %d byte scan limit", len(text), MaxScanBytes)
	}

	var (
		claimed []Match
		offsets []int
	)
	for _, rule := range d.rules {
		m, err := rule.Pattern.FindStringMatch(text)
		for m != nil && err == nil {
			if m.Length > 0 {
				if offsets == nil {
					offsets = byteOffsets(text)
				}
				start, end := offsets[m.Index], offsets[m.Index+m.Length]
				if !overlaps(claimed, start, end) {
					claimed = append(claimed, Match{
						Category: rule.Category,
						Rule:     rule.Name,
						Start:    start,
						End:      end,
						Value:    text[start:end],
					})
				}
			}
			m, err = rule.Pattern.FindNextMatch(m)
		}
		if err != nil {
			// regexp2 errors quote the input; only the rule is logged.
			d.logger.Warn("pii pattern evaluation aborted",
				"rule", rule.Name,
				"category", string(rule.Category),
				"text_bytes", len(text),
			)
			return nil, cloakerr.New(cloakerr.CodePrivacyScanFailure,
				"sensitive data scan did not complete",
				cloakerr.Field("rule", rule.Name),
			)
		}
	}
	return claimed, nil
}

// Tokenize replaces every sensitive span in text with a vault token. A value
// already in the vault keeps its existing token; a new value gets the next
// free "[CATEGORY_n]". Token-shaped literals already present in text are
// never minted, so they survive Detokenize unchanged. Text without matches
// is returned unchanged. On error the returned text is empty.
func (d *Detector) Tokenize(text string, vault *Vault) (string, error) {
	matches, err := d.Scan(text)
	if err != nil {
		return "", err
	}
	vault.reserve(text)
	if len(matches) == 0 {
		return text, nil
	}

	tokens := make([]string, len(matches))
	for i, m := range matches {
		tokens[i] = vault.tokenize(m.Category, m.Value)
	}
	return splice(text, matches, func(i int) string { return tokens[i] }), nil
}

// Detokenize replaces every vault token in text with its original value.
// Running it on text that holds no tokens is a no-op.
func (d *Detector) Detokenize(text string, vault *Vault) string {
	return vault.restore(text)
}

// Redact replaces sensitive spans with "[CATEGORY_REDACTED]". It is one-way
// and touches no vault; use it for logs and audit payloads. Text that cannot
// be scanned is replaced as a whole.
func (d *Detector) Redact(text string) string {
	matches, err := d.Scan(text)
	if err != nil {
		return withheld
	}
	if len(matches) == 0 {
		return text
	}
	return splice(text, matches, func(i int) string {
		return "[" + string(matches[i].Category) + "_REDACTED]"
	})
}

func overlaps(claimed []Match, start, end int) bool {
	for _, c := range claimed {
		if start < c.End && c.Start < end {
			return true
		}
	}
	return false
}

// byteOffsets maps the rune indexes reported by regexp2 to byte offsets in
// text. Each invalid UTF-8 byte counts as one rune, matching the conversion
// regexp2 applies, and the final entry is len(text).
func byteOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := 0; i < len(text); {
		offsets = append(offsets, i)
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return append(offsets, len(text))
}

// splice rebuilds text with each match replaced by replacement(i), where i is
// the index into matches. Bytes outside the matches are copied as is.
func splice(text string, matches []Match, replacement func(i int) string) string {
	order := make([]int, len(matches))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return matches[a].Start - matches[b].Start })

	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, i := range order {
		m := matches[i]
		b.WriteString(text[pos:m.Start])
		b.WriteString(replacement(i))
		pos = m.End
	}
	b.WriteString(text[pos:])
	return b.String()
}
