// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package privacy

import (
	"fmt"
	"slices"
	"strings"
)

// Vault maps placeholder tokens back to the original values they replaced.
//
// A Vault belongs to exactly one chat request. It is created empty when the
// request starts and discarded when it ends; it is never persisted and never
// shared. A Vault is not safe for concurrent use.
type Vault struct {
	byToken map[string]string
	byValue map[string]string
	order   []string

	// reserved holds token-shaped literals seen in tokenized text that the
	// vault did not mint. They are skipped when numbering new tokens.
	reserved map[string]struct{}
	last     int

	// replacer is rebuilt lazily after the vault changes.
	replacer *strings.Replacer
}

// NewVault returns an empty vault.
func NewVault() *Vault {
	return &Vault{
		byToken:  make(map[string]string),
		byValue:  make(map[string]string),
		reserved: make(map[string]struct{}),
	}
}

// Len returns the number of tokens minted so far.
func (v *Vault) Len() int {
	return len(v.order)
}

// Tokens returns all minted tokens in the order they were created.
func (v *Vault) Tokens() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Clear drops every entry.
func (v *Vault) Clear() {
	clear(v.byToken)
	clear(v.byValue)
	clear(v.reserved)
	v.order = v.order[:0]
	v.last = 0
	v.replacer = nil
}

// tokenize returns the token for value, minting "[CATEGORY_n]" when the
// value has not been seen before. n counts up from Len()+1 and skips any
// number whose token is reserved.
func (v *Vault) tokenize(category Category, value string) string {
	if token, ok := v.byValue[value]; ok {
		return token
	}

	var token string
	for {
		v.last++
		token = fmt.Sprintf("[%s_%d]", category, v.last)
		if _, taken := v.reserved[token]; !taken {
			break
		}
	}
	v.byToken[token] = value
	v.byValue[value] = token
	v.order = append(v.order, token)
	v.replacer = nil
	return token
}

// reserve records every "[CATEGORY_n]" literal in text that this vault did
// not mint.
func (v *Vault) reserve(text string) {
	for rest := text; ; {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			return
		}
		rest = rest[open:]
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return
		}
		if candidate := rest[:end+1]; isTokenShaped(candidate) {
			if _, minted := v.byToken[candidate]; !minted {
				v.reserved[candidate] = struct{}{}
			}
			rest = rest[end+1:]
			continue
		}
		rest = rest[1:]
	}
}

// isTokenShaped reports whether s has the form "[CATEGORY_n]" for a known
// category and a positive decimal n.
func isTokenShaped(s string) bool {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	cut := strings.LastIndexByte(inner, '_')
	if cut <= 0 || cut == len(inner)-1 || len(inner)-cut > 10 {
		return false
	}
	for _, r := range inner[cut+1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return slices.Contains(precedence, Category(inner[:cut]))
}

// restore replaces every token occurrence in text with its original value
// in a single left-to-right pass. Tokens are matched literally.
func (v *Vault) restore(text string) string {
	if len(v.order) == 0 || !strings.Contains(text, "[") {
		return text
	}
	if v.replacer == nil {
		pairs := make([]string, 0, len(v.order)*2)
		for _, token := range v.order {
			pairs = append(pairs, token, v.byToken[token])
		}
		v.replacer = strings.NewReplacer(pairs...)
	}
	return v.replacer.Replace(text)
}
