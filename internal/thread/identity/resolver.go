// Package identity decides how an operator is shown to the remote user and in the transcript.
package identity

import (
	"context"
	"errors"
	"fmt"

	"gomodmail/internal/config"
	"gomodmail/internal/dbmysql"
	"gomodmail/internal/platform"
)

// AnonymousLabel is shown when an anonymous operator has no staff role.
const AnonymousLabel = "Staff"

var ErrUnknownRole = errors.New("role does not exist in the guild")

// Identity is a resolved speaker. DisplayName is user facing, LogName goes to the transcript.
type Identity struct {
	DisplayName string
	LogName     string
	Role        *platform.Role
}

// RoleSource lists the roles of the staff guild.
type RoleSource interface {
	GuildRoles(ctx context.Context) ([]platform.Role, error)
}

type Resolver struct {
	roles        RoleSource
	isStaffRole  func(roleID string) bool
	useNicknames bool
}

func NewResolver(roles RoleSource, cfg *config.Config) *Resolver {
	return &Resolver{
		roles:        roles,
		isStaffRole:  cfg.IsStaffRole,
		useNicknames: cfg.Relay.UseNicknames,
	}
}

// Resolve applies the thread's role override for the operator, if the role still exists,
// and falls back to the operator's highest staff role.
func (r *Resolver) Resolve(ctx context.Context, operator platform.Member, thread *dbmysql.Thread, anonymous bool) (Identity, error) {
	guildRoles, err := r.roles.GuildRoles(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to list guild roles: %w", err)
	}

	role := MainRole(operator, guildRoles, r.isStaffRole)
	if thread != nil {
		overrides, err := thread.RoleOverrides()
		if err != nil {
			return Identity{}, err
		}
		if roleID, ok := overrides[operator.ID]; ok {
			if override := findRole(guildRoles, roleID); override != nil {
				role = override
			}
		}
	}

	return r.format(operator, role, anonymous), nil
}

// LookupRole returns the guild role with the given id or ErrUnknownRole.
func (r *Resolver) LookupRole(ctx context.Context, roleID string) (*platform.Role, error) {
	guildRoles, err := r.roles.GuildRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild roles: %w", err)
	}
	role := findRole(guildRoles, roleID)
	if role == nil {
		return nil, fmt.Errorf("role %s: %w", roleID, ErrUnknownRole)
	}
	return role, nil
}

func (r *Resolver) format(operator platform.Member, role *platform.Role, anonymous bool) Identity {
	name := operator.Username
	if r.useNicknames && operator.Nickname != "" {
		name = operator.Nickname
	}

	if anonymous {
		label := AnonymousLabel
		if role != nil {
			label = role.Name
		}
		return Identity{
			DisplayName: label,
			LogName:     fmt.Sprintf("%s (%s)", label, operator.Username),
			Role:        role,
		}
	}

	display := name
	if role != nil {
		display = fmt.Sprintf("(%s) %s", name, role.Name)
	}
	return Identity{DisplayName: display, LogName: display, Role: role}
}

// MainRole picks the highest positioned role the member holds that counts as a staff role.
func MainRole(member platform.Member, guildRoles []platform.Role, isStaffRole func(string) bool) *platform.Role {
	var main *platform.Role
	for i := range guildRoles {
		role := &guildRoles[i]
		if !member.HasRole(role.ID) || !isStaffRole(role.ID) {
			continue
		}
		if main == nil || role.Position > main.Position {
			main = role
		}
	}
	return main
}

func findRole(roles []platform.Role, id string) *platform.Role {
	for i := range roles {
		if roles[i].ID == id {
			return &roles[i]
		}
	}
	return nil
}
