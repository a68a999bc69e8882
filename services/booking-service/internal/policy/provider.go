package policy

import "context"

// Policy holds the configurable booking limits for a provider.
type Policy struct {
	Duration      DurationValidator
	AdvanceNotice AdvanceNoticeValidator
	MaxAdvance    MaxAdvanceValidator
}

func DefaultPolicy() Policy {
	return Policy{
		Duration:      DurationValidator{MinMinutes: 15, MaxMinutes: 240},
		AdvanceNotice: AdvanceNoticeValidator{MinHours: 2},
		MaxAdvance:    MaxAdvanceValidator{MaxDays: 90},
	}
}

func (p Policy) Validators() []Validator {
	return []Validator{p.Duration, p.AdvanceNotice, p.MaxAdvance}
}

// Provider resolves the policy that applies to a provider.
type Provider interface {
	Policy(ctx context.Context, providerID string) (Policy, error)
}

type staticProvider struct {
	policy Policy
}

func NewStaticProvider(p Policy) Provider {
	return &staticProvider{policy: p}
}

func (p *staticProvider) Policy(_ context.Context, _ string) (Policy, error) {
	return p.policy, nil
}
