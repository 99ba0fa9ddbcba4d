package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/pipeline_test"
)

func scopedAccessStore() *pipeline_test.MockAccessStore {
	return &pipeline_test.MockAccessStore{
		OnRecordIdsOwnedByUser: func(ctx context.Context, userId string) ([]string, error) {
			if userId == "doc-1" {
				return []string{"rec-a", "rec-b"}, nil
			}
			return nil, nil
		},
		OnRecordIdsGrantedToUser: func(ctx context.Context, userId string) ([]string, error) {
			if userId == "doc-1" {
				return []string{"rec-b", "rec-c"}, nil
			}
			return nil, nil
		},
		OnAllRecordIds: func(ctx context.Context) ([]string, error) {
			return []string{"rec-a", "rec-b", "rec-c", "rec-d"}, nil
		},
	}
}

func TestResolveScopePerRole(t *testing.T) {
	access := scopedAccessStore()
	ctx := context.Background()

	tests := []struct {
		name   string
		caller recordModel.Caller
		want   []string
	}{
		{"patient sees own records only",
			recordModel.Caller{UserId: "nobody", Role: recordModel.RolePatient}, nil},
		{"doctor sees uploads plus grants deduped",
			recordModel.Caller{UserId: "doc-1", Role: recordModel.RoleDoctor},
			[]string{"rec-a", "rec-b", "rec-c"}},
		{"manager sees everything",
			recordModel.Caller{UserId: "mgr-1", Role: recordModel.RoleManager},
			[]string{"rec-a", "rec-b", "rec-c", "rec-d"}},
		{"admin sees everything",
			recordModel.Caller{UserId: "adm-1", Role: recordModel.RoleAdmin},
			[]string{"rec-a", "rec-b", "rec-c", "rec-d"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scope, err := ResolveScope(ctx, tc.caller, access)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, scope)
		})
	}
}

func TestResolveScopeRejectsUnknownRole(t *testing.T) {
	_, err := ResolveScope(context.Background(),
		recordModel.Caller{UserId: "u", Role: recordModel.Role("superuser")}, scopedAccessStore())
	assert.True(t, errors.Is(err, faults.ErrValidation))
}

func TestCanAccess(t *testing.T) {
	access := &pipeline_test.MockAccessStore{
		OnOwnsRecord: func(ctx context.Context, userId string, recordId string) (bool, error) {
			return userId == "patient-user" && recordId == "rec-a", nil
		},
		OnHasGrant: func(ctx context.Context, userId string, recordId string) (bool, error) {
			return userId == "doc-1" && recordId == "rec-a", nil
		},
	}
	ctx := context.Background()

	ok, err := CanAccess(ctx, recordModel.Caller{UserId: "patient-user", Role: recordModel.RolePatient}, access, "rec-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CanAccess(ctx, recordModel.Caller{UserId: "patient-user", Role: recordModel.RolePatient}, access, "rec-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = CanAccess(ctx, recordModel.Caller{UserId: "doc-1", Role: recordModel.RoleDoctor}, access, "rec-a")
	require.NoError(t, err)
	assert.True(t, ok, "grant must confer doctor access")

	ok, err = CanAccess(ctx, recordModel.Caller{UserId: "doc-2", Role: recordModel.RoleDoctor}, access, "rec-a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = CanAccess(ctx, recordModel.Caller{UserId: "any", Role: recordModel.RoleAdmin}, access, "rec-a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = CanAccess(ctx, recordModel.Caller{UserId: "u", Role: recordModel.Role("intern")}, access, "rec-a")
	assert.True(t, errors.Is(err, faults.ErrValidation))
}
