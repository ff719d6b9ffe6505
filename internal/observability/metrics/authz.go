// Copyright 2026 The LendCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthzInstruments holds the counters recorded by the access control core.
// A nil *AuthzInstruments records nothing.
type AuthzInstruments struct {
	decisions          metric.Int64Counter
	mutations          metric.Int64Counter
	securityViolations metric.Int64Counter
	cacheLookups       metric.Int64Counter
	evalDuration       metric.Float64Histogram
}

// NewAuthzInstruments registers the authorization instruments on m.
func NewAuthzInstruments(m *Meter) (*AuthzInstruments, error) {
	decisions, err := m.CreateCounter("authz_decisions_total", "Access evaluator decisions by operation and outcome")
	if err != nil {
		return nil, err
	}
	mutations, err := m.CreateCounter("authz_mutations_total", "Role and grant mutations by operation and outcome")
	if err != nil {
		return nil, err
	}
	violations, err := m.CreateCounter("authz_security_violations_total", "Rejected cross-space grant attempts")
	if err != nil {
		return nil, err
	}
	lookups, err := m.CreateCounter("authz_cache_lookups_total", "Permission cache lookups by result")
	if err != nil {
		return nil, err
	}
	duration, err := m.CreateHistogram(ResolutionHistogram, "Time spent resolving a user's grants", "s")
	if err != nil {
		return nil, err
	}
	return &AuthzInstruments{
		decisions:          decisions,
		mutations:          mutations,
		securityViolations: violations,
		cacheLookups:       lookups,
		evalDuration:       duration,
	}, nil
}

func (a *AuthzInstruments) RecordDecision(ctx context.Context, op string, allowed bool) {
	if a == nil {
		return
	}
	a.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("allowed", allowed),
	))
}

func (a *AuthzInstruments) RecordMutation(ctx context.Context, op, outcome string) {
	if a == nil {
		return
	}
	a.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func (a *AuthzInstruments) RecordSecurityViolation(ctx context.Context, op string) {
	if a == nil {
		return
	}
	a.securityViolations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

func (a *AuthzInstruments) RecordCacheLookup(ctx context.Context, result string) {
	if a == nil {
		return
	}
	a.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (a *AuthzInstruments) RecordResolution(ctx context.Context, seconds float64) {
	if a == nil {
		return
	}
	a.evalDuration.Record(ctx, seconds)
}
