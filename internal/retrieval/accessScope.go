package retrieval

import (
	"context"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
)

// ResolveScope returns every record id the caller may read. The switch is
// exhaustive over the role enum; an unknown role resolves to an error, never
// to an empty-but-successful scope.
func ResolveScope(ctx context.Context, caller recordModel.Caller, access recordModel.AccessStore) ([]string, error) {
	switch caller.Role {
	case recordModel.RolePatient:
		return access.RecordIdsOwnedByUser(ctx, caller.UserId)

	case recordModel.RoleDoctor:
		owned, err := access.RecordIdsOwnedByUser(ctx, caller.UserId)
		if err != nil {
			return nil, err
		}
		granted, err := access.RecordIdsGrantedToUser(ctx, caller.UserId)
		if err != nil {
			return nil, err
		}
		return dedupe(owned, granted), nil

	case recordModel.RoleManager, recordModel.RoleAdmin:
		return access.AllRecordIds(ctx)

	default:
		return nil, faults.Validation("unknown role %q", string(caller.Role))
	}
}

// CanAccess decides read access to one record using the same role rules as
// ResolveScope.
func CanAccess(ctx context.Context, caller recordModel.Caller, access recordModel.AccessStore, recordId string) (bool, error) {
	switch caller.Role {
	case recordModel.RolePatient:
		return access.OwnsRecord(ctx, caller.UserId, recordId)

	case recordModel.RoleDoctor:
		owns, err := access.OwnsRecord(ctx, caller.UserId, recordId)
		if err != nil || owns {
			return owns, err
		}
		return access.HasGrant(ctx, caller.UserId, recordId)

	case recordModel.RoleManager, recordModel.RoleAdmin:
		return true, nil

	default:
		return false, faults.Validation("unknown role %q", string(caller.Role))
	}
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
