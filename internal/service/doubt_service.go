package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/models"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
)

type doubtRepository interface {
	List(ctx context.Context, filter models.DoubtFilter) ([]models.Doubt, int, error)
	FindByID(ctx context.Context, id string) (*models.Doubt, error)
	Create(ctx context.Context, doubt *models.Doubt) error
	Update(ctx context.Context, doubt *models.Doubt) error
	TransitionStatus(ctx context.Context, id string, from []models.DoubtStatus, to models.DoubtStatus) (bool, error)
	AssignEducator(ctx context.Context, doubtID, educatorID string) (bool, error)
	ReassignEducator(ctx context.Context, doubtID, educatorID string) error
}

type responseRepository interface {
	Create(ctx context.Context, resp *models.DoubtResponse) error
	ListByDoubt(ctx context.Context, doubtID string) ([]models.DoubtResponse, error)
	ExistsByID(ctx context.Context, doubtID, responseID string) (bool, error)
}

type ratingRepository interface {
	Upsert(ctx context.Context, rating *models.DoubtRating) error
	FindByDoubtAndStudent(ctx context.Context, doubtID, studentID string) (*models.DoubtRating, error)
}

type doubtAssigner interface {
	Assign(ctx context.Context, doubtID, subject string) (*string, error)
}

type aiGenerator interface {
	Enabled() bool
	GenerateForDoubt(ctx context.Context, doubt *models.Doubt) (*models.DoubtResponse, error)
}

type taskDispatcher interface {
	Dispatch(name string, fn func(context.Context) error)
}

// DoubtService is the doubt lifecycle manager: create, list, get, update,
// respond, rate. It checks the access policy, applies the primary write, and
// triggers best-effort side effects (activity log, notifications,
// auto-assignment, AI generation) off the critical path.
type DoubtService struct {
	doubts        doubtRepository
	responses     responseRepository
	ratings       ratingRepository
	policy        *AccessPolicy
	assigner      doubtAssigner
	ai            aiGenerator
	activity      activityRecorder
	notifications notifier
	tasks         taskDispatcher
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewDoubtService constructs the service. assigner, ai and tasks may be nil:
// without tasks, side effects run inline.
func NewDoubtService(doubts doubtRepository, responses responseRepository, ratings ratingRepository, policy *AccessPolicy, assigner doubtAssigner, ai aiGenerator, activity activityRecorder, notifications notifier, tasks taskDispatcher, validate *validator.Validate, logger *zap.Logger) *DoubtService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DoubtService{
		doubts:        doubts,
		responses:     responses,
		ratings:       ratings,
		policy:        policy,
		assigner:      assigner,
		ai:            ai,
		activity:      activity,
		notifications: notifications,
		tasks:         tasks,
		validator:     validate,
		logger:        logger,
	}
	registerDoubtValidations(svc.validator)
	return svc
}

func registerDoubtValidations(v *validator.Validate) {
	v.RegisterValidation("doubt_type", func(fl validator.FieldLevel) bool {
		switch models.DoubtType(fl.Field().String()) {
		case models.DoubtTypeConcept, models.DoubtTypeProblem, models.DoubtTypeHomework, models.DoubtTypeExamPrep, models.DoubtTypeOther:
			return true
		default:
			return false
		}
	})
	v.RegisterValidation("doubt_priority", func(fl validator.FieldLevel) bool {
		switch models.DoubtPriority(fl.Field().String()) {
		case models.DoubtPriorityLow, models.DoubtPriorityMedium, models.DoubtPriorityHigh, models.DoubtPriorityUrgent:
			return true
		default:
			return false
		}
	})
	v.RegisterValidation("doubt_status", func(fl validator.FieldLevel) bool {
		switch models.DoubtStatus(fl.Field().String()) {
		case models.DoubtStatusOpen, models.DoubtStatusAssigned, models.DoubtStatusInProgress, models.DoubtStatusResolved, models.DoubtStatusClosed:
			return true
		default:
			return false
		}
	})
}

// dispatch runs a side effect through the task queue, or inline when no
// queue is wired. Side-effect errors are logged and never surface.
func (s *DoubtService) dispatch(name string, fn func(context.Context) error) {
	if s.tasks != nil {
		s.tasks.Dispatch(name, fn)
		return
	}
	if err := fn(context.Background()); err != nil {
		s.logger.Warn("side effect failed", zap.String("task", name), zap.Error(err))
	}
}

// CreateDoubtRequest describes the create payload.
type CreateDoubtRequest struct {
	Title                string   `json:"title" validate:"required,min=5,max=255"`
	Description          string   `json:"description" validate:"required,min=10,max=5000"`
	Subject              string   `json:"subject" validate:"required,min=1,max=100"`
	Type                 string   `json:"type" validate:"required,doubt_type"`
	Priority             string   `json:"priority" validate:"omitempty,doubt_priority"`
	DifficultyLevel      int      `json:"difficulty_level" validate:"omitempty,min=1,max=5"`
	Tags                 []string `json:"tags" validate:"omitempty,dive,max=50"`
	Attachments          []string `json:"attachments"`
	EstimatedTimeMinutes *int     `json:"estimated_time_minutes" validate:"omitempty,min=1"`
	PreferAI             bool     `json:"prefer_ai"`
}

// Create persists a new doubt owned by the calling student. The doubt row is
// the success criterion; AI generation or auto-assignment failures leave the
// doubt created and open.
func (s *DoubtService) Create(ctx context.Context, claims *models.JWTClaims, req CreateDoubtRequest) (*models.Doubt, error) {
	if claims.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may raise doubts")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid doubt payload")
	}

	priority := models.DoubtPriority(req.Priority)
	if priority == "" {
		priority = models.DoubtPriorityMedium
	}
	difficulty := req.DifficultyLevel
	if difficulty == 0 {
		difficulty = 3
	}

	doubt := &models.Doubt{
		Title:                req.Title,
		Description:          req.Description,
		Subject:              req.Subject,
		Type:                 models.DoubtType(req.Type),
		Priority:             priority,
		DifficultyLevel:      difficulty,
		Tags:                 pq.StringArray(req.Tags),
		Attachments:          pq.StringArray(req.Attachments),
		Status:               models.DoubtStatusOpen,
		StudentID:            claims.UserID, // forced, never client-supplied
		EstimatedTimeMinutes: req.EstimatedTimeMinutes,
	}
	if err := s.doubts.Create(ctx, doubt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create doubt")
	}

	actorID := claims.UserID
	created := *doubt
	s.dispatch("doubt.created.activity", func(ctx context.Context) error {
		s.activity.Record(ctx, created.ID, &actorID, models.ActivityDoubtCreated,
			fmt.Sprintf("doubt %q created", created.Title), nil, created)
		return nil
	})
	s.dispatch("doubt.created.notify", func(ctx context.Context) error {
		_, err := s.notifications.Send(ctx, SendNotificationInput{
			UserID:   created.StudentID,
			DoubtID:  &created.ID,
			Type:     models.NotificationDoubtCreated,
			Title:    "Doubt submitted",
			Message:  fmt.Sprintf("Your doubt %q is awaiting an educator", created.Title),
			Priority: models.NotificationPriorityNormal,
		})
		return err
	})

	if req.PreferAI && s.ai != nil && s.ai.Enabled() {
		s.dispatch("doubt.created.ai", func(ctx context.Context) error {
			if _, err := s.ai.GenerateForDoubt(ctx, &created); err != nil {
				s.logger.Warn("ai response generation failed, doubt stays open",
					zap.String("doubt_id", created.ID), zap.Error(err))
			}
			return nil
		})
	} else if s.assigner != nil {
		s.dispatch("doubt.created.assign", func(ctx context.Context) error {
			if _, err := s.assigner.Assign(ctx, created.ID, created.Subject); err != nil {
				s.logger.Warn("auto-assignment failed, doubt stays open",
					zap.String("doubt_id", created.ID), zap.Error(err))
			}
			return nil
		})
	}

	return doubt, nil
}

// ListDoubtsRequest describes list filters. Page size is capped at 100.
type ListDoubtsRequest struct {
	Status     string `json:"status" validate:"omitempty,doubt_status"`
	Subject    string `json:"subject"`
	Priority   string `json:"priority" validate:"omitempty,doubt_priority"`
	StudentID  string `json:"student_id"`
	EducatorID string `json:"educator_id"`
	Search     string `json:"search"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
}

// List returns doubts visible to the principal, newest first.
func (s *DoubtService) List(ctx context.Context, claims *models.JWTClaims, req ListDoubtsRequest) ([]models.Doubt, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid list filters")
	}

	filter := models.DoubtFilter{
		Subject:    req.Subject,
		StudentID:  req.StudentID,
		EducatorID: req.EducatorID,
		Search:     req.Search,
		Page:       req.Page,
		PageSize:   req.Limit,
	}
	if req.Status != "" {
		status := models.DoubtStatus(req.Status)
		filter.Status = &status
	}
	if req.Priority != "" {
		priority := models.DoubtPriority(req.Priority)
		filter.Priority = &priority
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	if err := s.policy.ScopeFilter(ctx, claims, &filter); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scope doubt list")
	}
	// A parent with no linked children sees an empty page, not an error.
	if claims.Role == models.RoleParent && len(filter.ScopeStudentIDs) == 0 {
		return []models.Doubt{}, models.NewPagination(filter.Page, filter.PageSize, 0), nil
	}

	doubts, total, err := s.doubts.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list doubts")
	}
	if doubts == nil {
		doubts = []models.Doubt{}
	}
	return doubts, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// visibleDoubt loads a doubt and enforces read visibility. Principals who
// may not see the doubt get not-found so its existence does not leak; every
// entry point that takes a doubt id goes through here before any
// operation-specific check.
func (s *DoubtService) visibleDoubt(ctx context.Context, claims *models.JWTClaims, id string) (*models.Doubt, error) {
	doubt, err := s.findDoubt(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed, err := s.policy.CanAccess(ctx, claims, doubt, OpRead)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "access check failed")
	}
	if !allowed {
		return nil, appErrors.ErrNotFound
	}
	return doubt, nil
}

// Get returns doubt detail with the response thread (oldest first) and the
// owner's rating, if any.
func (s *DoubtService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.DoubtDetail, error) {
	doubt, err := s.visibleDoubt(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	responses, err := s.responses.ListByDoubt(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load responses")
	}
	if responses == nil {
		responses = []models.DoubtResponse{}
	}
	rating, err := s.ratings.FindByDoubtAndStudent(ctx, id, doubt.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rating")
	}

	return &models.DoubtDetail{Doubt: *doubt, Responses: responses, Rating: rating}, nil
}

// UpdateDoubtRequest describes a partial update. Only permitted fields apply;
// assignment changes are staff-only.
type UpdateDoubtRequest struct {
	Status               *string   `json:"status" validate:"omitempty,doubt_status"`
	Priority             *string   `json:"priority" validate:"omitempty,doubt_priority"`
	Tags                 *[]string `json:"tags" validate:"omitempty,dive,max=50"`
	EstimatedTimeMinutes *int      `json:"estimated_time_minutes" validate:"omitempty,min=1"`
	AssignedEducatorID   *string   `json:"assigned_educator_id"`
}

// Update applies a patch to the doubt: general fields, assignment, then a
// guarded status transition. Notifications and the activity snapshot run as
// side effects.
func (s *DoubtService) Update(ctx context.Context, claims *models.JWTClaims, id string, req UpdateDoubtRequest) (*models.Doubt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	doubt, err := s.visibleDoubt(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if req.Status == nil && req.Priority == nil && req.Tags == nil &&
		req.EstimatedTimeMinutes == nil && req.AssignedEducatorID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "update payload has no fields")
	}
	if doubt.Status == models.DoubtStatusClosed {
		return nil, appErrors.ErrDoubtClosed
	}

	oldSnapshot := *doubt

	if req.AssignedEducatorID != nil {
		allowed, err := s.policy.CanAccess(ctx, claims, doubt, OpReassign)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "access check failed")
		}
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "educator assignment is staff-only")
		}
	}

	hasGeneral := req.Priority != nil || req.Tags != nil || req.EstimatedTimeMinutes != nil
	if hasGeneral {
		allowed, err := s.policy.CanAccess(ctx, claims, doubt, OpUpdateGeneral)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "access check failed")
		}
		if !allowed {
			return nil, appErrors.ErrForbidden
		}
	}

	var target *models.DoubtStatus
	if req.Status != nil && models.DoubtStatus(*req.Status) != doubt.Status {
		status := models.DoubtStatus(*req.Status)
		target = &status
		allowed, err := s.policy.CanAccess(ctx, claims, doubt, OpUpdateStatus)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "access check failed")
		}
		if !allowed {
			return nil, appErrors.ErrForbidden
		}
		if !s.statusChangeAllowedForRole(claims, doubt, status) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not set this status")
		}
		if !doubt.Status.CanTransitionTo(status) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot move doubt from %s to %s", doubt.Status, status))
		}
	}

	// Assignment before status: staff assigning an open doubt also moves it
	// to assigned via the atomic guard.
	if req.AssignedEducatorID != nil {
		if doubt.Status == models.DoubtStatusOpen && doubt.AssignedEducatorID == nil {
			assigned, err := s.doubts.AssignEducator(ctx, id, *req.AssignedEducatorID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign educator")
			}
			if assigned {
				doubt.Status = models.DoubtStatusAssigned
			}
		} else {
			if err := s.doubts.ReassignEducator(ctx, id, *req.AssignedEducatorID); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reassign educator")
			}
		}
		doubt.AssignedEducatorID = req.AssignedEducatorID
	}

	if hasGeneral {
		if req.Priority != nil {
			doubt.Priority = models.DoubtPriority(*req.Priority)
		}
		if req.Tags != nil {
			doubt.Tags = pq.StringArray(*req.Tags)
		}
		if req.EstimatedTimeMinutes != nil {
			doubt.EstimatedTimeMinutes = req.EstimatedTimeMinutes
		}
		if err := s.doubts.Update(ctx, doubt); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update doubt")
		}
	}

	if target != nil {
		applied, err := s.doubts.TransitionStatus(ctx, id, []models.DoubtStatus{doubt.Status}, *target)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition status")
		}
		if !applied {
			return nil, appErrors.Clone(appErrors.ErrConflict, "doubt status changed concurrently")
		}
		doubt.Status = *target
	}

	updated, err := s.findDoubt(ctx, id)
	if err != nil {
		return nil, err
	}

	actorID := claims.UserID
	newSnapshot := *updated
	s.dispatch("doubt.updated.activity", func(ctx context.Context) error {
		activityType := models.ActivityDoubtUpdated
		if target != nil {
			activityType = models.ActivityStatusChanged
		} else if req.AssignedEducatorID != nil {
			activityType = models.ActivityEducatorSet
		}
		s.activity.Record(ctx, newSnapshot.ID, &actorID, activityType,
			"doubt updated", oldSnapshot, newSnapshot)
		return nil
	})
	s.dispatchUpdateNotifications(&oldSnapshot, &newSnapshot)

	return updated, nil
}

// statusChangeAllowedForRole narrows status targets by role: the assignee
// works the doubt (in_progress, resolved), the owner may resolve or close
// their own doubt, staff may apply any forward transition.
func (s *DoubtService) statusChangeAllowedForRole(claims *models.JWTClaims, doubt *models.Doubt, target models.DoubtStatus) bool {
	if claims.Role.IsStaff() {
		return true
	}
	if claims.Role == models.RoleEducator {
		return target == models.DoubtStatusInProgress || target == models.DoubtStatusResolved
	}
	if claims.Role == models.RoleStudent && doubt.StudentID == claims.UserID {
		return target == models.DoubtStatusResolved || target == models.DoubtStatusClosed
	}
	return false
}

func (s *DoubtService) dispatchUpdateNotifications(old, updated *models.Doubt) {
	if old.Priority != updated.Priority {
		doubtID := updated.ID
		studentID := updated.StudentID
		newPriority := updated.Priority
		s.dispatch("doubt.priority.notify", func(ctx context.Context) error {
			_, err := s.notifications.Send(ctx, SendNotificationInput{
				UserID:   studentID,
				DoubtID:  &doubtID,
				Type:     models.NotificationPriorityChanged,
				Title:    "Doubt priority updated",
				Message:  fmt.Sprintf("Your doubt's priority is now %s", newPriority),
				Priority: models.NotificationPriorityLow,
			})
			return err
		})
	}

	if old.Status == updated.Status {
		if old.AssignedEducatorID == nil && updated.AssignedEducatorID != nil {
			s.notifyAssignment(updated)
		}
		return
	}

	doubtID := updated.ID
	studentID := updated.StudentID
	switch updated.Status {
	case models.DoubtStatusAssigned:
		s.notifyAssignment(updated)
	case models.DoubtStatusInProgress:
		s.dispatch("doubt.in_progress.notify", func(ctx context.Context) error {
			_, err := s.notifications.Send(ctx, SendNotificationInput{
				UserID:   studentID,
				DoubtID:  &doubtID,
				Type:     models.NotificationDoubtInProgress,
				Title:    "Doubt in progress",
				Message:  "An educator is working on your doubt",
				Priority: models.NotificationPriorityNormal,
			})
			return err
		})
	case models.DoubtStatusResolved:
		s.dispatch("doubt.resolved.notify", func(ctx context.Context) error {
			_, err := s.notifications.Send(ctx, SendNotificationInput{
				UserID:   studentID,
				DoubtID:  &doubtID,
				Type:     models.NotificationDoubtResolved,
				Title:    "Doubt resolved",
				Message:  "Your doubt has been resolved. You can now rate the resolution.",
				Priority: models.NotificationPriorityHigh,
			})
			return err
		})
	case models.DoubtStatusClosed:
		s.dispatch("doubt.closed.notify", func(ctx context.Context) error {
			_, err := s.notifications.Send(ctx, SendNotificationInput{
				UserID:   studentID,
				DoubtID:  &doubtID,
				Type:     models.NotificationDoubtClosed,
				Title:    "Doubt closed",
				Message:  "Your doubt has been closed",
				Priority: models.NotificationPriorityLow,
			})
			return err
		})
	}
}

func (s *DoubtService) notifyAssignment(doubt *models.Doubt) {
	if doubt.AssignedEducatorID == nil {
		return
	}
	educatorID := *doubt.AssignedEducatorID
	doubtID := doubt.ID
	subject := doubt.Subject
	s.dispatch("doubt.assigned.notify", func(ctx context.Context) error {
		_, err := s.notifications.Send(ctx, SendNotificationInput{
			UserID:   educatorID,
			DoubtID:  &doubtID,
			Type:     models.NotificationDoubtAssigned,
			Title:    "New doubt assigned",
			Message:  fmt.Sprintf("A %s doubt was assigned to you", subject),
			Priority: models.NotificationPriorityNormal,
		})
		return err
	})
}

// AddResponseRequest describes a thread reply.
type AddResponseRequest struct {
	Content          string   `json:"content" validate:"required,min=1,max=10000"`
	Attachments      []string `json:"attachments"`
	ParentResponseID *string  `json:"parent_response_id"`
}

// AddResponse posts a reply. The first non-owner response moves an open or
// assigned doubt to in_progress; the guarded update makes concurrent
// responders race harmlessly.
func (s *DoubtService) AddResponse(ctx context.Context, claims *models.JWTClaims, doubtID string, req AddResponseRequest) (*models.DoubtResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}

	doubt, err := s.visibleDoubt(ctx, claims, doubtID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.policy.CanAccess(ctx, claims, doubt, OpRespond)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "access check failed")
	}
	if !allowed {
		return nil, appErrors.ErrForbidden
	}
	if doubt.Status == models.DoubtStatusClosed {
		return nil, appErrors.ErrDoubtClosed
	}

	if req.ParentResponseID != nil {
		exists, err := s.responses.ExistsByID(ctx, doubtID, *req.ParentResponseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check parent response")
		}
		if !exists {
			return nil, appErrors.Clone(appErrors.ErrValidation, "parent response does not belong to this doubt")
		}
	}

	authorID := claims.UserID
	resp := &models.DoubtResponse{
		DoubtID:          doubtID,
		AuthorID:         &authorID,
		AuthorType:       models.AuthorTypeForRole(claims.Role),
		Content:          req.Content,
		Attachments:      pq.StringArray(req.Attachments),
		ParentResponseID: req.ParentResponseID,
	}
	if err := s.responses.Create(ctx, resp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create response")
	}

	isOwner := claims.Role == models.RoleStudent && claims.UserID == doubt.StudentID
	transitioned := false
	if !isOwner && (doubt.Status == models.DoubtStatusOpen || doubt.Status == models.DoubtStatusAssigned) {
		applied, terr := s.doubts.TransitionStatus(ctx, doubtID,
			[]models.DoubtStatus{models.DoubtStatusOpen, models.DoubtStatusAssigned},
			models.DoubtStatusInProgress)
		if terr != nil {
			// The response is already committed; losing the transition here
			// only delays in_progress until the next responder.
			s.logger.Warn("in_progress transition failed after response",
				zap.String("doubt_id", doubtID), zap.Error(terr))
		} else {
			transitioned = applied
		}
	}

	created := *resp
	s.dispatch("response.created.activity", func(ctx context.Context) error {
		s.activity.Record(ctx, doubtID, &authorID, models.ActivityResponseAdded,
			"response added to doubt", nil,
			map[string]interface{}{"response_id": created.ID, "author_type": created.AuthorType, "transitioned": transitioned})
		return nil
	})

	// Notify the other participants, never the author.
	recipients := map[string]models.NotificationPriority{}
	if doubt.StudentID != claims.UserID {
		recipients[doubt.StudentID] = models.NotificationPriorityNormal
	}
	if doubt.AssignedEducatorID != nil && *doubt.AssignedEducatorID != claims.UserID {
		recipients[*doubt.AssignedEducatorID] = models.NotificationPriorityNormal
	}
	for userID, priority := range recipients {
		recipientID := userID
		notifPriority := priority
		s.dispatch("response.created.notify", func(ctx context.Context) error {
			_, err := s.notifications.Send(ctx, SendNotificationInput{
				UserID:   recipientID,
				DoubtID:  &doubtID,
				Type:     models.NotificationResponseAdded,
				Title:    "New response",
				Message:  fmt.Sprintf("New response on doubt %q", doubt.Title),
				Priority: notifPriority,
			})
			return err
		})
	}

	return resp, nil
}

// RateDoubtRequest describes a rating payload.
type RateDoubtRequest struct {
	Rating                int     `json:"rating" validate:"required,min=1,max=5"`
	Feedback              *string `json:"feedback" validate:"omitempty,max=1000"`
	ResponseQualityRating *int    `json:"response_quality_rating" validate:"omitempty,min=1,max=5"`
	ResponseSpeedRating   *int    `json:"response_speed_rating" validate:"omitempty,min=1,max=5"`
	EducatorRating        *int    `json:"educator_rating" validate:"omitempty,min=1,max=5"`
}

// Rate upserts the owning student's rating for a resolved doubt. Rating
// twice overwrites the earlier values; one row per (doubt, student).
func (s *DoubtService) Rate(ctx context.Context, claims *models.JWTClaims, doubtID string, req RateDoubtRequest) (*models.DoubtRating, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rating payload")
	}

	doubt, err := s.visibleDoubt(ctx, claims, doubtID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.policy.CanAccess(ctx, claims, doubt, OpRate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "access check failed")
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student may rate")
	}
	if doubt.Status != models.DoubtStatusResolved {
		return nil, appErrors.ErrNotResolved
	}

	rating := &models.DoubtRating{
		DoubtID:               doubtID,
		StudentID:             claims.UserID,
		Rating:                req.Rating,
		Feedback:              req.Feedback,
		ResponseQualityRating: req.ResponseQualityRating,
		ResponseSpeedRating:   req.ResponseSpeedRating,
		EducatorRating:        req.EducatorRating,
	}
	if err := s.ratings.Upsert(ctx, rating); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save rating")
	}

	actorID := claims.UserID
	saved := *rating
	s.dispatch("doubt.rated.activity", func(ctx context.Context) error {
		s.activity.Record(ctx, doubtID, &actorID, models.ActivityDoubtRated,
			fmt.Sprintf("doubt rated %d/5", saved.Rating), nil, saved)
		return nil
	})
	if doubt.AssignedEducatorID != nil {
		educatorID := *doubt.AssignedEducatorID
		stars := req.Rating
		s.dispatch("doubt.rated.notify", func(ctx context.Context) error {
			_, err := s.notifications.Send(ctx, SendNotificationInput{
				UserID:   educatorID,
				DoubtID:  &doubtID,
				Type:     models.NotificationDoubtRated,
				Title:    "Resolution rated",
				Message:  fmt.Sprintf("The student rated this resolution %d/5", stars),
				Priority: models.NotificationPriorityLow,
			})
			return err
		})
	}

	return rating, nil
}

func (s *DoubtService) findDoubt(ctx context.Context, id string) (*models.Doubt, error) {
	doubt, err := s.doubts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doubt")
	}
	return doubt, nil
}
