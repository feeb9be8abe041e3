package service

import (
	"context"

	"github.com/clatprep/clat-prep-api/internal/models"
)

// DoubtOperation names the doubt actions gated by the access policy.
type DoubtOperation string

const (
	OpRead          DoubtOperation = "read"
	OpUpdateGeneral DoubtOperation = "update_general"
	OpUpdateStatus  DoubtOperation = "update_status"
	OpReassign      DoubtOperation = "reassign"
	OpRespond       DoubtOperation = "respond"
	OpRate          DoubtOperation = "rate"
)

type relationshipReader interface {
	HasActiveLink(ctx context.Context, parentID, studentID string) (bool, error)
	ListChildren(ctx context.Context, parentID string) ([]string, error)
}

// AccessPolicy is the single source of truth for who may do what on a doubt.
// It never mutates state; the parent check reads the relationship store.
type AccessPolicy struct {
	links relationshipReader
}

// NewAccessPolicy constructs the policy.
func NewAccessPolicy(links relationshipReader) *AccessPolicy {
	return &AccessPolicy{links: links}
}

// CanAccess decides whether the principal may perform op on the doubt.
func (p *AccessPolicy) CanAccess(ctx context.Context, claims *models.JWTClaims, doubt *models.Doubt, op DoubtOperation) (bool, error) {
	if claims == nil || doubt == nil {
		return false, nil
	}

	isOwner := claims.Role == models.RoleStudent && doubt.StudentID == claims.UserID
	isAssignee := claims.Role == models.RoleEducator &&
		doubt.AssignedEducatorID != nil && *doubt.AssignedEducatorID == claims.UserID
	isStaff := claims.Role.IsStaff()

	switch op {
	case OpRead:
		// Educators read the whole pool: any of them may pick up a doubt
		// and answer it, assigned or not.
		if isOwner || isStaff || claims.Role == models.RoleEducator {
			return true, nil
		}
		if claims.Role == models.RoleParent {
			return p.links.HasActiveLink(ctx, claims.UserID, doubt.StudentID)
		}
		return false, nil

	case OpUpdateGeneral, OpUpdateStatus:
		return isOwner || isAssignee || isStaff, nil

	case OpReassign:
		// Staff-only: educators may not assign doubts to themselves.
		return isStaff, nil

	case OpRespond:
		// Any educator may answer, not just the assignee: the doubt pool is
		// an open Q&A surface.
		return isOwner || isStaff || claims.Role == models.RoleEducator, nil

	case OpRate:
		return isOwner, nil

	default:
		return false, nil
	}
}

// ScopeFilter narrows a list filter to what the principal may see. A parent
// with no linked children gets an empty-result scope, not an error.
func (p *AccessPolicy) ScopeFilter(ctx context.Context, claims *models.JWTClaims, filter *models.DoubtFilter) error {
	switch claims.Role {
	case models.RoleStudent:
		filter.ScopeStudentID = claims.UserID
		filter.StudentID = ""
		filter.EducatorID = ""
	case models.RoleEducator:
		filter.ScopeEducatorID = claims.UserID
	case models.RoleParent:
		children, err := p.links.ListChildren(ctx, claims.UserID)
		if err != nil {
			return err
		}
		if children == nil {
			children = []string{}
		}
		filter.ScopeStudentIDs = children
		filter.StudentID = ""
		filter.EducatorID = ""
	case models.RoleAdmin, models.RoleOperationManager:
		// Staff sees everything; client-supplied student/educator filters stand.
	}
	return nil
}
