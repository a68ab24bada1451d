// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package privacy

import (
	"log/slog"
	"time"

	"github.com/dlclark/regexp2"
)

func CompileRule(category Category, name, pattern string, timeout time.Duration) Rule {
	re := regexp2.MustCompile(pattern, regexp2.None)
	re.MatchTimeout = timeout
	return Rule{Category: category, Name: name, Pattern: re}
}

func NewDetectorForRules(logger *slog.Logger, rules ...Rule) *Detector {
	return &Detector{rules: rules, logger: logger}
}

var EmailRule = rulesByCategory[CategoryEmail][0]
