package service

import (
	"context"
	"fmt"

	"gomodmail/internal/dbmysql"
)

// SetStaffRoleOverride makes operatorID show up with roleID in this thread.
func (e *Engine) SetStaffRoleOverride(ctx context.Context, threadID, operatorID, roleID string) error {
	if _, err := e.resolver.LookupRole(ctx, roleID); err != nil {
		return err
	}
	return e.updateOverrides(ctx, threadID, func(overrides map[string]string) {
		overrides[operatorID] = roleID
	})
}

func (e *Engine) DeleteStaffRoleOverride(ctx context.Context, threadID, operatorID string) error {
	return e.updateOverrides(ctx, threadID, func(overrides map[string]string) {
		delete(overrides, operatorID)
	})
}

// GetStaffRoleOverride returns the overriding role id, if any.
func (e *Engine) GetStaffRoleOverride(ctx context.Context, threadID, operatorID string) (string, bool, error) {
	thread, err := e.FindByID(ctx, threadID)
	if err != nil {
		return "", false, err
	}
	overrides, err := thread.RoleOverrides()
	if err != nil {
		return "", false, err
	}
	roleID, ok := overrides[operatorID]
	return roleID, ok, nil
}

func (e *Engine) updateOverrides(ctx context.Context, threadID string, mutate func(map[string]string)) error {
	return e.withLock(ctx, threadID, func(thread *dbmysql.Thread) error {
		if thread.IsClosed() {
			return fmt.Errorf("set role override on thread %s: %w", thread.ID, ErrThreadNotOpen)
		}
		overrides, err := thread.RoleOverrides()
		if err != nil {
			return err
		}
		mutate(overrides)

		raw, err := dbmysql.EncodeRoleOverrides(overrides)
		if err != nil {
			return err
		}
		if err := e.threads.SetRoleOverrides(ctx, thread.ID, raw); err != nil {
			return storeError("set role overrides", err)
		}
		return nil
	})
}
