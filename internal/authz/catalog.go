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
	"errors"
	"sort"

	"github.com/lendcore/lendcore/internal/audit"
	"github.com/lendcore/lendcore/internal/id"
)

// Catalog is the read-mostly set of grantable capabilities.
type Catalog struct {
	store       Store
	auditLogger audit.Logger
}

// ListPermissions returns the catalog, optionally restricted to one space.
func (c *Catalog) ListPermissions(ctx context.Context, spaceFilter *Space) ([]*Permission, error) {
	if spaceFilter != nil && !spaceFilter.Valid() {
		return nil, invalidSpace("unknown space filter " + string(*spaceFilter))
	}
	perms, err := c.store.Permissions().List(ctx, spaceFilter)
	if err != nil {
		return nil, storageFailure("list permissions", err)
	}
	return perms, nil
}

// GetPermissionByKey resolves a resource:action key.
func (c *Catalog) GetPermissionByKey(ctx context.Context, key string) (*Permission, error) {
	if _, _, err := ParsePermissionKey(key); err != nil {
		return nil, err
	}
	perm, err := c.store.Permissions().GetByKey(ctx, key)
	if err != nil {
		return nil, storageFailure("get permission", err)
	}
	return perm, nil
}

// ListModules returns modules ordered by sort order, then menu key.
func (c *Catalog) ListModules(ctx context.Context, spaceFilter *Space) ([]*Module, error) {
	if spaceFilter != nil && !spaceFilter.Valid() {
		return nil, invalidSpace("unknown space filter " + string(*spaceFilter))
	}
	modules, err := c.store.Permissions().ListModules(ctx, spaceFilter)
	if err != nil {
		return nil, storageFailure("list modules", err)
	}
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].SortOrder != modules[j].SortOrder {
			return modules[i].SortOrder < modules[j].SortOrder
		}
		return modules[i].MenuKey < modules[j].MenuKey
	})
	return modules, nil
}

// ProvisionPermission inserts or refreshes a catalog entry. The space of an
// existing permission never changes, and a permission pointing at an existing
// module must share its space and use one of its action keys.
func (c *Catalog) ProvisionPermission(ctx context.Context, perm *Permission) error {
	resource, action, err := ParsePermissionKey(perm.Key)
	if err != nil {
		return err
	}
	if !perm.Space.Valid() {
		return invalidSpace("permission " + perm.Key + " has no valid space")
	}
	perm.Resource, perm.Action = resource, action

	err = c.store.InTx(ctx, func(tx Store) error {
		existing, err := tx.Permissions().GetByKey(ctx, perm.Key)
		switch {
		case errors.Is(err, ErrNotFound):
			if perm.ID == "" {
				perm.ID = id.NewUUIDv7()
			}
		case err != nil:
			return storageFailure("get permission", err)
		default:
			if existing.Space != perm.Space {
				return ErrPermissionSpaceImmutable
			}
			perm.ID = existing.ID
		}

		module, err := tx.Permissions().GetModule(ctx, perm.MenuKey())
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return storageFailure("get module", err)
		default:
			if module.Space != perm.Space {
				return invalidSpace("permission " + perm.Key + " and module " + module.MenuKey + " live in different spaces")
			}
			if !module.AllowsAction(perm.ActionKey()) {
				return invalidArgument("module %s does not allow action %s", module.MenuKey, perm.ActionKey())
			}
		}

		return storageFailure("upsert permission", tx.Permissions().Upsert(ctx, perm))
	})
	if err != nil {
		return err
	}

	c.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypePermissionProvisioned,
		ActorID:    audit.ActorSystemSeed,
		EntityType: audit.EntityPermission,
		EntityID:   perm.ID,
		After:      perm.Key,
		Metadata:   map[string]any{"space": string(perm.Space)},
	})
	return nil
}

// ProvisionModule inserts or refreshes a module. Its space never changes.
func (c *Catalog) ProvisionModule(ctx context.Context, module *Module) error {
	if module.MenuKey == "" {
		return invalidArgument("module menu key is required")
	}
	if !module.Space.Valid() {
		return invalidSpace("module " + module.MenuKey + " has no valid space")
	}
	if module.Status == "" {
		module.Status = ModuleStatusActive
	}

	err := c.store.InTx(ctx, func(tx Store) error {
		existing, err := tx.Permissions().GetModule(ctx, module.MenuKey)
		switch {
		case errors.Is(err, ErrNotFound):
			if module.ID == "" {
				module.ID = id.NewUUIDv7()
			}
		case err != nil:
			return storageFailure("get module", err)
		default:
			if existing.Space != module.Space {
				return invalidSpace("module " + module.MenuKey + " space cannot change")
			}
			module.ID = existing.ID
		}
		return storageFailure("upsert module", tx.Permissions().UpsertModule(ctx, module))
	})
	if err != nil {
		return err
	}

	c.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeModuleProvisioned,
		ActorID:    audit.ActorSystemSeed,
		EntityType: audit.EntityModule,
		EntityID:   module.ID,
		After:      module.MenuKey,
	})
	return nil
}
