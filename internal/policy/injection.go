// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package policy

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// InjectionRule is a prompt-injection detection pattern.
type InjectionRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// InjectionFinding records one rule hit inside a message.
type InjectionFinding struct {
	Rule         string `json:"rule"`
	MessageIndex int    `json:"message_index"`
	Location     int    `json:"location"`
	Length       int    `json:"length"`
}

// DefaultInjectionRules returns the built-in prompt-injection patterns.
func DefaultInjectionRules() []InjectionRule {
	return []InjectionRule{
		{
			Name:    "instruction_override",
			Pattern: regexp.MustCompile(`(?i)(ignore|disregard|override|forget|do\s+not\s+follow)\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
		},
		{
			Name:    "role_confusion",
			Pattern: regexp.MustCompile(`(?i)you\s+are\s+now\s+\w+[,.]?\s*(do|ignore|forget|disregard)`),
		},
		{
			Name:    "system_block_injection",
			Pattern: regexp.MustCompile("(?i)```system\\b"),
		},
		{
			Name:    "new_task_injection",
			Pattern: regexp.MustCompile(`(?i)(new\s+task|from\s+now\s+on|pretend\s+(?:the\s+)?(?:above|previous)\s+(?:rules?|instructions?)\s+(?:do\s+not|don'?t)\s+exist)`),
		},
		{
			Name:    "system_tag_injection",
			Pattern: regexp.MustCompile(`(?i)(?:<\|?system\|?>|\[system\]|<<SYS>>)`),
		},
		{
			Name:    "token_revelation",
			Pattern: regexp.MustCompile(`(?i)(reveal|print|show|list|output)\s+(all\s+)?(the\s+)?(original|real|raw|hidden|masked)\s+(values?|data|pii|tokens?)`),
		},
	}
}

var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // BOM
	"\u00ad", "", // soft hyphen
	"\u034f", "", // combining grapheme joiner
	"\u061c", "", // Arabic letter mark
	"\u180e", "", // Mongolian vowel separator
	"\u2060", "", // word joiner
	"\u2061", "",
	"\u2062", "",
	"\u2063", "",
	"\u2064", "",
)

// normalize strips invisible characters and applies NFKC so that homoglyph
// and zero-width variants of a phrase match the same rule. It is applied to
// the scanned copy only; message content is never rewritten.
func normalize(s string) string {
	return norm.NFKC.String(invisibleCharReplacer.Replace(s))
}

// scanInjection returns every rule hit in text. index is recorded on each
// finding.
func scanInjection(rules []InjectionRule, index int, text string) []InjectionFinding {
	if text == "" {
		return nil
	}
	text = normalize(text)

	var findings []InjectionFinding
	for _, rule := range rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, InjectionFinding{
				Rule:         rule.Name,
				MessageIndex: index,
				Location:     loc[0],
				Length:       loc[1] - loc[0],
			})
		}
	}
	return findings
}
