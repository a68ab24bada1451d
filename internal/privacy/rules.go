// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package privacy

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// Category names a class of sensitive value. It is the prefix of every token
// minted for that class, e.g. "[PHONE_1]".
type Category string

const (
	CategoryEmail      Category = "EMAIL"
	CategorySecret     Category = "SECRET"
	CategoryCreditCard Category = "CREDIT_CARD"
	CategorySSN        Category = "SSN"
	CategoryIPAddress  Category = "IP_ADDRESS"
	CategoryPhone      Category = "PHONE"
)

// precedence is the fixed order in which categories claim spans. A span
// matched by an earlier category is never re-examined by a later one.
var precedence = []Category{
	CategoryEmail,
	CategorySecret,
	CategoryCreditCard,
	CategorySSN,
	CategoryIPAddress,
	CategoryPhone,
}

// Categories returns every supported category in precedence order.
func Categories() []Category {
	out := make([]Category, len(precedence))
	copy(out, precedence)
	return out
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range precedence {
		if c == known {
			return c, nil
		}
	}
	return "", cloakerr.Errorf(cloakerr.CodeConfigValidateInvalidValue, "unknown pii category %q", s)
}

// matchTimeout bounds a single pattern evaluation.
const matchTimeout = 250 * time.Millisecond

// Rule is one detection pattern for a category.
type Rule struct {
	Category Category
	Name     string
	Pattern  *regexp2.Regexp
}

func mustRule(category Category, name, pattern string) Rule {
	re := regexp2.MustCompile(pattern, regexp2.None)
	re.MatchTimeout = matchTimeout
	return Rule{Category: category, Name: name, Pattern: re}
}

// Digit classes are spelled [0-9] because \d matches any Unicode digit.
var rulesByCategory = map[Category][]Rule{
	CategoryEmail: {
		mustRule(CategoryEmail, "email", `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	},
	CategorySecret: {
		mustRule(CategorySecret, "aws_access_key", `AKIA[0-9A-Z]{16}`),
		mustRule(CategorySecret, "anthropic_api_key", `sk-ant-api[0-9]{2}-[A-Za-z0-9_-]{20,}`),
		mustRule(CategorySecret, "openai_project_key", `sk-proj-[A-Za-z0-9_-]{20,}`),
		mustRule(CategorySecret, "openai_api_key", `sk-[A-Za-z0-9]{40,}`),
		mustRule(CategorySecret, "github_pat", `ghp_[A-Za-z0-9]{36}`),
		mustRule(CategorySecret, "github_fine_grained_pat", `github_pat_[A-Za-z0-9_]{22,}`),
		mustRule(CategorySecret, "slack_token", `xox[bpas]-[A-Za-z0-9-]+`),
		mustRule(CategorySecret, "google_api_key", `AIza[0-9A-Za-z_-]{35}`),
		mustRule(CategorySecret, "bearer_token", `(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`),
	},
	CategoryCreditCard: {
		mustRule(CategoryCreditCard, "card_number", `(?<![0-9-])(?:[0-9]{4}[- ]?){3}[0-9]{4}(?![0-9-])`),
	},
	CategorySSN: {
		mustRule(CategorySSN, "us_ssn", `(?<![0-9-])[0-9]{3}-[0-9]{2}-[0-9]{4}(?![0-9-])`),
	},
	CategoryIPAddress: {
		mustRule(CategoryIPAddress, "ipv4",
			`(?<![0-9.])(?:(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])(?![0-9]|\.[0-9])`),
	},
	CategoryPhone: {
		// Not preceded by a digit or '.', not starting on a separator or on a
		// short integer part followed by a long fraction, and not followed by
		// a digit or a decimal fraction, so numbers such as 0.1234567890123
		// are left alone.
		mustRule(CategoryPhone, "phone",
			`(?<![0-9.])(?![-.])(?![0-9]{1,3}\.[0-9]{10})(?:\+?([1-9][0-9]{0,2})[-. (]*)?\(?([0-9]{3})\)?[-. ]*([0-9]{3})[-. ]*([0-9]{4})(?: *x([0-9]+))?(?![0-9])(?!\.[0-9])`),
	},
}

// rulesFor returns the rules for the enabled categories in precedence order.
func rulesFor(enabled []Category) []Rule {
	on := make(map[Category]bool, len(enabled))
	for _, c := range enabled {
		on[c] = true
	}
	var rules []Rule
	for _, c := range precedence {
		if on[c] {
			rules = append(rules, rulesByCategory[c]...)
		}
	}
	return rules
}
