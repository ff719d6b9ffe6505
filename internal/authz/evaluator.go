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

package authz

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lendcore/lendcore/internal/observability/logger"
)

// Evaluator answers access questions. Every answer is computed from the same
// grant resolution, so single checks and permission listings always agree.
// Checks never return errors: any failure denies.
type Evaluator struct {
	*deps
	group singleflight.Group
}

// NewEvaluator creates a new access evaluator
func NewEvaluator(store Store, opts Options) *Evaluator {
	return newEvaluator(newDeps(store, nil, opts))
}

func newEvaluator(d *deps) *Evaluator {
	return &Evaluator{deps: d}
}

// HasPermission reports whether the user holds resource:action.
func (e *Evaluator) HasPermission(ctx context.Context, userID, resource, action string) bool {
	key := PermissionKey(resource, action)
	ctx, span := tracer.Start(ctx, "authz.HasPermission")
	defer span.End()

	allowed := e.matchAny(ctx, "has_permission", userID, func(g Grant) bool { return g.Key == key })
	e.metrics.RecordDecision(ctx, "has_permission", allowed)
	return allowed
}

// HasMenuAccess reports whether the user holds any action on menuKey.
func (e *Evaluator) HasMenuAccess(ctx context.Context, userID, menuKey string) bool {
	ctx, span := tracer.Start(ctx, "authz.HasMenuAccess")
	defer span.End()

	allowed := e.matchAny(ctx, "has_menu_access", userID, func(g Grant) bool {
		return !g.MenuDisabled && g.MenuKey == menuKey
	})
	e.metrics.RecordDecision(ctx, "has_menu_access", allowed)
	return allowed
}

// HasAction reports whether the user holds actionKey on menuKey.
func (e *Evaluator) HasAction(ctx context.Context, userID, menuKey, actionKey string) bool {
	ctx, span := tracer.Start(ctx, "authz.HasAction")
	defer span.End()

	allowed := e.matchAny(ctx, "has_action", userID, func(g Grant) bool {
		return !g.MenuDisabled && g.MenuKey == menuKey && g.ActionKey == actionKey
	})
	e.metrics.RecordDecision(ctx, "has_action", allowed)
	return allowed
}

// GetUserPermissions lists what the user may do as flat keys and as a
// menu to actions map. Both are sorted. Disabled modules are left out of the
// menu map but not out of the keys.
func (e *Evaluator) GetUserPermissions(ctx context.Context, userID string) (*UserPermissions, error) {
	ctx, span := tracer.Start(ctx, "authz.GetUserPermissions")
	defer span.End()

	grants, err := e.grants(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve user permissions", logger.UserID(userID), logger.Error(err))
		return nil, storageFailure("resolve permissions", err)
	}

	keys := make(map[string]struct{})
	menus := make(map[string]map[string]struct{})
	for _, g := range grants {
		keys[g.Key] = struct{}{}
		if g.MenuDisabled {
			continue
		}
		if menus[g.MenuKey] == nil {
			menus[g.MenuKey] = make(map[string]struct{})
		}
		menus[g.MenuKey][g.ActionKey] = struct{}{}
	}

	out := &UserPermissions{Keys: sortedSet(keys), Menus: make(map[string][]string, len(menus))}
	for menu, actions := range menus {
		out.Menus[menu] = sortedSet(actions)
	}
	return out, nil
}

// CheckWithConstraints runs HasAction and then the constraints of the roles
// that grant it. The call is allowed if at least one granting role has no
// constraints or constraints that pass. A role with a malformed payload
// contributes nothing.
func (e *Evaluator) CheckWithConstraints(ctx context.Context, userID, menuKey, actionKey string, cc CheckContext) Decision {
	ctx, span := tracer.Start(ctx, "authz.CheckWithConstraints")
	defer span.End()

	decision := e.checkWithConstraints(ctx, userID, menuKey, actionKey, cc)
	e.metrics.RecordDecision(ctx, "check_with_constraints", decision.Allowed)
	return decision
}

func (e *Evaluator) checkWithConstraints(ctx context.Context, userID, menuKey, actionKey string, cc CheckContext) Decision {
	grants, err := e.grants(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "access check failed closed", logger.UserID(userID), logger.MenuKey(menuKey), logger.Error(err))
		return Decision{Allowed: false, Reason: "evaluation failed"}
	}
	if cc.At.IsZero() {
		cc.At = e.now()
	}

	reason := "no role grants " + menuKey + ":" + actionKey
	seen := make(map[string]struct{})
	for _, g := range grants {
		if g.MenuDisabled || g.MenuKey != menuKey || g.ActionKey != actionKey {
			continue
		}
		if _, ok := seen[g.RoleID]; ok {
			continue
		}
		seen[g.RoleID] = struct{}{}

		c, err := ParseConstraints(g.Constraints)
		if err != nil {
			slog.WarnContext(ctx, "ignoring role with malformed constraints", logger.RoleID(g.RoleID), logger.Error(err))
			reason = "role " + g.RoleName + " has malformed constraints"
			continue
		}
		ok, why := c.Allows(cc)
		if ok {
			return Decision{Allowed: true}
		}
		reason = why
	}
	return Decision{Allowed: false, Reason: reason}
}

func (e *Evaluator) matchAny(ctx context.Context, op, userID string, match func(Grant) bool) bool {
	grants, err := e.grants(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "access check failed closed",
			logger.Operation(op),
			logger.UserID(userID),
			logger.Error(err),
		)
		return false
	}
	for _, g := range grants {
		if match(g) {
			return true
		}
	}
	return false
}

// grants resolves the user's active grants, through the cache when present.
func (e *Evaluator) grants(ctx context.Context, userID string) ([]Grant, error) {
	now := e.now()
	generation, cacheable := e.lookupGeneration(ctx)
	if cacheable {
		cached, ok, err := e.cache.Get(ctx, generation, userID)
		switch {
		case err != nil:
			e.metrics.RecordCacheLookup(ctx, "error")
			slog.WarnContext(ctx, "permission cache read failed", logger.UserID(userID), logger.Error(err))
		case ok:
			e.metrics.RecordCacheLookup(ctx, "hit")
			return activeGrants(cached, now), nil
		default:
			e.metrics.RecordCacheLookup(ctx, "miss")
		}
	}

	flight := strconv.FormatInt(generation, 10) + ":" + userID
	v, err, _ := e.group.Do(flight, func() (any, error) {
		start := time.Now()
		grants, err := e.store.Resolution().ResolveGrants(ctx, userID, now)
		e.metrics.RecordResolution(ctx, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if cacheable {
			if ttl := e.entryTTL(grants, now); ttl > 0 {
				if err := e.cache.Set(ctx, generation, userID, grants, ttl); err != nil {
					slog.WarnContext(ctx, "permission cache write failed", logger.UserID(userID), logger.Error(err))
				}
			}
		}
		return grants, nil
	})
	if err != nil {
		return nil, err
	}
	return activeGrants(v.([]Grant), now), nil
}

func (e *Evaluator) lookupGeneration(ctx context.Context) (int64, bool) {
	if e.cache == nil {
		return 0, false
	}
	generation, err := e.cache.Generation(ctx)
	if err != nil {
		e.metrics.RecordCacheLookup(ctx, "error")
		slog.WarnContext(ctx, "permission cache unavailable", logger.Error(err))
		return 0, false
	}
	return generation, true
}

// entryTTL keeps a cache entry from outliving the first link expiry it holds.
func (e *Evaluator) entryTTL(grants []Grant, now time.Time) time.Duration {
	ttl := e.cacheTTL
	for _, g := range grants {
		if g.ExpiresAt != nil {
			if until := g.ExpiresAt.Sub(now); until < ttl {
				ttl = until
			}
		}
	}
	return ttl
}

// activeGrants drops grants whose link expired at or before now.
func activeGrants(grants []Grant, now time.Time) []Grant {
	out := make([]Grant, 0, len(grants))
	for _, g := range grants {
		if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
