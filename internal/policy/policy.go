// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package policy decides whether a chat request may proceed and moves
// message content across the privacy boundary in both directions.
package policy

import (
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/sigil-dev/cloak/internal/privacy"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
	"github.com/sigil-dev/cloak/pkg/types"
)

// Config controls request admission.
type Config struct {
	// RequiredRoles, when non-empty, lists roles of which the caller must
	// hold at least one. A caller with no roles is always rejected.
	RequiredRoles []string
	InjectionMode types.InjectionMode
}

// Decision is the outcome of an admitted request.
type Decision struct {
	// Flagged holds injection findings recorded in flag mode.
	Flagged []InjectionFinding
}

// Service applies request policy and de-identification.
type Service struct {
	cfg      Config
	rules    []InjectionRule
	detector *privacy.Detector
	logger   *slog.Logger
}

// New creates a policy service. detector is required.
func New(cfg Config, detector *privacy.Detector, logger *slog.Logger) (*Service, error) {
	if detector == nil {
		return nil, cloakerr.New(cloakerr.CodeConfigValidateInvalidValue, "policy: detector is required")
	}
	if cfg.InjectionMode == "" {
		cfg.InjectionMode = types.InjectionModeFlag
	}
	if !cfg.InjectionMode.Valid() {
		return nil, cloakerr.Errorf(cloakerr.CodeConfigValidateInvalidValue, "policy: invalid injection mode %q", cfg.InjectionMode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		rules:    DefaultInjectionRules(),
		detector: detector,
		logger:   logger,
	}, nil
}

// ValidateRequest admits or rejects a request. The returned error carries
// CodePolicyRequestDenied when the caller lacks roles and
// CodePolicyInputDenied when blocked injection patterns were found.
func (s *Service) ValidateRequest(actx types.AgentContext, msgs []types.Message) (Decision, error) {
	if len(actx.Roles) == 0 {
		return Decision{}, cloakerr.New(cloakerr.CodePolicyRequestDenied,
			"policy validation failed: caller has no roles",
			cloakerr.FieldUserID(actx.UserID),
		)
	}
	if len(s.cfg.RequiredRoles) > 0 && !lo.Some(actx.Roles, s.cfg.RequiredRoles) {
		return Decision{}, cloakerr.New(cloakerr.CodePolicyRequestDenied,
			"policy validation failed: caller lacks a required role",
			cloakerr.FieldUserID(actx.UserID),
			cloakerr.Field("required_roles", s.cfg.RequiredRoles),
		)
	}

	if s.cfg.InjectionMode == types.InjectionModeOff {
		return Decision{}, nil
	}

	var findings []InjectionFinding
	for i, m := range msgs {
		if m.Role != types.RoleUser {
			continue
		}
		findings = append(findings, scanInjection(s.rules, i, m.Content)...)
	}
	if len(findings) == 0 {
		return Decision{}, nil
	}

	if s.cfg.InjectionMode == types.InjectionModeBlock {
		return Decision{}, cloakerr.New(cloakerr.CodePolicyInputDenied,
			"policy validation failed: input rejected",
			cloakerr.FieldUserID(actx.UserID),
			cloakerr.Field("first_rule", findings[0].Rule),
			cloakerr.Field("matches", len(findings)),
		)
	}

	s.logger.Warn("possible prompt injection flagged",
		"user_id", actx.UserID,
		"first_rule", findings[0].Rule,
		"matches", len(findings),
	)
	return Decision{Flagged: findings}, nil
}

// DeidentifyMessages returns a copy of msgs with message content and tool
// call arguments tokenized into vault. It stops at the first message that
// cannot be scanned.
func (s *Service) DeidentifyMessages(msgs []types.Message, vault *privacy.Vault) ([]types.Message, error) {
	out := types.CloneMessages(msgs)
	for i := range out {
		m, err := s.DeidentifyMessage(out[i], vault)
		if err != nil {
			return nil, cloakerr.With(err, cloakerr.Field("message_index", i))
		}
		out[i] = m
	}
	return out, nil
}

// DeidentifyMessage tokenizes one message. The tool call slice is copied.
func (s *Service) DeidentifyMessage(m types.Message, vault *privacy.Vault) (types.Message, error) {
	var err error
	if m.Content, err = s.detector.Tokenize(m.Content, vault); err != nil {
		return types.Message{}, err
	}
	m.ToolCalls = slices.Clone(m.ToolCalls)
	for j := range m.ToolCalls {
		args, err := s.detector.Tokenize(m.ToolCalls[j].Function.Arguments, vault)
		if err != nil {
			return types.Message{}, err
		}
		m.ToolCalls[j].Function.Arguments = args
	}
	return m, nil
}

// ReidentifyToolCalls returns a copy of calls with arguments restored.
func (s *Service) ReidentifyToolCalls(calls []types.ToolCall, vault *privacy.Vault) []types.ToolCall {
	out := slices.Clone(calls)
	for i := range out {
		out[i].Function.Arguments = s.detector.Detokenize(out[i].Function.Arguments, vault)
	}
	return out
}

// ReidentifyMessages returns a copy of msgs with content and tool call
// arguments restored.
func (s *Service) ReidentifyMessages(msgs []types.Message, vault *privacy.Vault) []types.Message {
	out := types.CloneMessages(msgs)
	for i := range out {
		out[i].Content = s.detector.Detokenize(out[i].Content, vault)
		out[i].ToolCalls = s.ReidentifyToolCalls(out[i].ToolCalls, vault)
	}
	return out
}

// Redact returns text with sensitive values irreversibly masked.
func (s *Service) Redact(text string) string {
	return s.detector.Redact(text)
}
