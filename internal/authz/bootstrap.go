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
	"fmt"
	"log/slog"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/observability/logger"
)

// Bootstrapper hands the system administrator role to the first operator.
type Bootstrapper struct {
	*deps
}

// NewBootstrapper creates a new bootstrapper
func NewBootstrapper(store Store, auditLogger audit.Logger, opts Options) *Bootstrapper {
	return &Bootstrapper{deps: newDeps(store, auditLogger, opts)}
}

// Bootstrap assigns the system administrator role to userID unless somebody
// already holds it. An empty userID does nothing. It reports whether the role
// was assigned.
func (b *Bootstrapper) Bootstrap(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	now := b.now()
	assigned := false
	err := b.store.InTx(ctx, func(tx Store) error {
		role, err := tx.Roles().GetForUpdate(ctx, RoleIDSystemAdmin)
		if err != nil {
			return fmt.Errorf("system administrator role missing, run migrate first: %w", storageFailure("get role", err))
		}

		exists, err := tx.Assignments().HasActiveHolder(ctx, role.ID, now)
		if err != nil {
			return storageFailure("check role holders", err)
		}
		if exists {
			return nil
		}

		user, err := loadUser(ctx, tx.Users(), userID)
		if err != nil {
			return err
		}
		if err := checkUserFitsRole(user, role); err != nil {
			return err
		}

		assigned, err = tx.Assignments().Assign(ctx, &Assignment{
			UserID:    user.ID,
			RoleID:    role.ID,
			GrantedBy: audit.ActorSystemBootstrap,
			GrantedAt: now,
		})
		return storageFailure("assign role", err)
	})
	if err != nil {
		return false, err
	}
	if !assigned {
		return false, nil
	}

	b.invalidate(ctx)
	b.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeSystemAdminBootstrap,
		ActorID:    audit.ActorSystemBootstrap,
		EntityType: audit.EntityUser,
		EntityID:   userID,
		After:      map[string]any{"role_id": RoleIDSystemAdmin},
	})
	slog.InfoContext(ctx, "bootstrapped system administrator", logger.UserID(userID))
	return true, nil
}
