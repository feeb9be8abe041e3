package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clatprep/clat-prep-api/internal/models"
)

type stubRelationshipRepo struct {
	links       map[string][]string
	linkErr     error
	childrenErr error
}

func (s *stubRelationshipRepo) HasActiveLink(_ context.Context, parentID, studentID string) (bool, error) {
	if s.linkErr != nil {
		return false, s.linkErr
	}
	for _, child := range s.links[parentID] {
		if child == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRelationshipRepo) ListChildren(_ context.Context, parentID string) ([]string, error) {
	if s.childrenErr != nil {
		return nil, s.childrenErr
	}
	return s.links[parentID], nil
}

func claimsFor(role models.UserRole, userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: role}
}

func TestCanAccessMatrix(t *testing.T) {
	educatorID := "edu-1"
	doubt := &models.Doubt{ID: "doubt-1", StudentID: "stu-1", AssignedEducatorID: &educatorID}
	policy := NewAccessPolicy(&stubRelationshipRepo{links: map[string][]string{"par-1": {"stu-1"}}})

	cases := []struct {
		name    string
		claims  *models.JWTClaims
		op      DoubtOperation
		allowed bool
	}{
		{"owner reads", claimsFor(models.RoleStudent, "stu-1"), OpRead, true},
		{"other student cannot read", claimsFor(models.RoleStudent, "stu-2"), OpRead, false},
		{"assignee reads", claimsFor(models.RoleEducator, "edu-1"), OpRead, true},
		{"unassigned educator reads the pool", claimsFor(models.RoleEducator, "edu-2"), OpRead, true},
		{"linked parent reads", claimsFor(models.RoleParent, "par-1"), OpRead, true},
		{"unlinked parent cannot read", claimsFor(models.RoleParent, "par-2"), OpRead, false},
		{"admin reads", claimsFor(models.RoleAdmin, "adm-1"), OpRead, true},
		{"operation manager reads", claimsFor(models.RoleOperationManager, "ops-1"), OpRead, true},

		{"owner updates", claimsFor(models.RoleStudent, "stu-1"), OpUpdateGeneral, true},
		{"parent never updates", claimsFor(models.RoleParent, "par-1"), OpUpdateGeneral, false},
		{"assignee updates status", claimsFor(models.RoleEducator, "edu-1"), OpUpdateStatus, true},
		{"unassigned educator cannot update status", claimsFor(models.RoleEducator, "edu-2"), OpUpdateStatus, false},

		{"educator cannot reassign", claimsFor(models.RoleEducator, "edu-1"), OpReassign, false},
		{"owner cannot reassign", claimsFor(models.RoleStudent, "stu-1"), OpReassign, false},
		{"admin reassigns", claimsFor(models.RoleAdmin, "adm-1"), OpReassign, true},

		{"any educator responds", claimsFor(models.RoleEducator, "edu-2"), OpRespond, true},
		{"owner responds", claimsFor(models.RoleStudent, "stu-1"), OpRespond, true},
		{"other student cannot respond", claimsFor(models.RoleStudent, "stu-2"), OpRespond, false},
		{"parent never responds", claimsFor(models.RoleParent, "par-1"), OpRespond, false},

		{"owner rates", claimsFor(models.RoleStudent, "stu-1"), OpRate, true},
		{"assignee cannot rate", claimsFor(models.RoleEducator, "edu-1"), OpRate, false},
		{"admin cannot rate", claimsFor(models.RoleAdmin, "adm-1"), OpRate, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			allowed, err := policy.CanAccess(context.Background(), tc.claims, doubt, tc.op)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, allowed)
		})
	}
}

func TestCanAccessNilInputs(t *testing.T) {
	policy := NewAccessPolicy(&stubRelationshipRepo{})

	allowed, err := policy.CanAccess(context.Background(), nil, &models.Doubt{}, OpRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = policy.CanAccess(context.Background(), claimsFor(models.RoleAdmin, "adm"), nil, OpRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCanAccessParentLinkError(t *testing.T) {
	policy := NewAccessPolicy(&stubRelationshipRepo{linkErr: errors.New("db down")})
	allowed, err := policy.CanAccess(context.Background(), claimsFor(models.RoleParent, "par-1"), &models.Doubt{StudentID: "stu-1"}, OpRead)
	require.Error(t, err)
	assert.False(t, allowed)
}

func TestScopeFilterStudent(t *testing.T) {
	policy := NewAccessPolicy(&stubRelationshipRepo{})
	filter := models.DoubtFilter{StudentID: "someone-else", EducatorID: "edu-9"}

	require.NoError(t, policy.ScopeFilter(context.Background(), claimsFor(models.RoleStudent, "stu-1"), &filter))
	assert.Equal(t, "stu-1", filter.ScopeStudentID)
	assert.Empty(t, filter.StudentID, "client student filter must not widen scope")
	assert.Empty(t, filter.EducatorID)
}

func TestScopeFilterEducator(t *testing.T) {
	policy := NewAccessPolicy(&stubRelationshipRepo{})
	filter := models.DoubtFilter{}

	require.NoError(t, policy.ScopeFilter(context.Background(), claimsFor(models.RoleEducator, "edu-1"), &filter))
	assert.Equal(t, "edu-1", filter.ScopeEducatorID)
}

func TestScopeFilterParent(t *testing.T) {
	policy := NewAccessPolicy(&stubRelationshipRepo{links: map[string][]string{"par-1": {"stu-1", "stu-2"}}})
	filter := models.DoubtFilter{}

	require.NoError(t, policy.ScopeFilter(context.Background(), claimsFor(models.RoleParent, "par-1"), &filter))
	assert.Equal(t, []string{"stu-1", "stu-2"}, filter.ScopeStudentIDs)
}

func TestScopeFilterParentNoChildren(t *testing.T) {
	policy := NewAccessPolicy(&stubRelationshipRepo{})
	filter := models.DoubtFilter{}

	require.NoError(t, policy.ScopeFilter(context.Background(), claimsFor(models.RoleParent, "par-1"), &filter))
	require.NotNil(t, filter.ScopeStudentIDs)
	assert.Empty(t, filter.ScopeStudentIDs)
}

func TestScopeFilterStaffUnscoped(t *testing.T) {
	policy := NewAccessPolicy(&stubRelationshipRepo{})
	filter := models.DoubtFilter{StudentID: "stu-1"}

	require.NoError(t, policy.ScopeFilter(context.Background(), claimsFor(models.RoleAdmin, "adm-1"), &filter))
	assert.Empty(t, filter.ScopeStudentID)
	assert.Equal(t, "stu-1", filter.StudentID, "staff keep client filters")
}
