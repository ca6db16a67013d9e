package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/crestline-io/helpdesk-service/internal/domain"
	"github.com/crestline-io/helpdesk-service/internal/events"
	"github.com/crestline-io/helpdesk-service/internal/policy"
	"github.com/crestline-io/helpdesk-service/internal/repository"
	apperrors "github.com/crestline-io/helpdesk-service/pkg/util"
)

// TicketService coordinates ticket and comment workflows. Every operation
// resolves the ticket first, so a missing ticket reports not-found before
// any authorization denial.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	dispatcher events.Dispatcher
}

// TicketDependencies bundles repositories for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	Dispatcher  events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		dispatcher: deps.Dispatcher,
	}
}

// TicketCreateInput describes ticket creation payload. Status, creator and
// assignee are not accepted here: status always starts open, the creator is
// the caller, and new tickets are unassigned.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
}

// TicketListFilter describes listing filters; all are intersected with the
// caller's visibility scope.
type TicketListFilter struct {
	Status     *domain.TicketStatus
	Priority   *domain.TicketPriority
	AssignedTo *string
	CreatedBy  *string
}

// TicketPatch carries a partial update. Nil fields are left unchanged.
// AssigneeSet distinguishes "not supplied" from "clear the assignee"
// (Assignee nil with AssigneeSet true).
type TicketPatch struct {
	Title       *string
	Description *string
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	Assignee    *string
	AssigneeSet bool
}

func (p TicketPatch) fieldSet() policy.FieldSet {
	var fields []policy.Field
	if p.Title != nil {
		fields = append(fields, policy.FieldTitle)
	}
	if p.Description != nil {
		fields = append(fields, policy.FieldDescription)
	}
	if p.Status != nil {
		fields = append(fields, policy.FieldStatus)
	}
	if p.Priority != nil {
		fields = append(fields, policy.FieldPriority)
	}
	if p.AssigneeSet {
		fields = append(fields, policy.FieldAssignee)
	}
	return policy.NewFieldSet(fields...)
}

func (p TicketPatch) fieldNames() []string {
	var names []string
	for f := policy.FieldTitle; f <= policy.FieldAssignee; f++ {
		if p.fieldSet().Has(f) {
			names = append(names, f.String())
		}
	}
	return names
}

// Create opens a new ticket for the actor. Any authenticated actor may
// create; the payload cannot influence status, creator or assignee.
func (s *TicketService) Create(ctx context.Context, actor policy.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !domain.ValidTicketPriority(priority) {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(priority)})
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		CreatedBy:   actor.ID,
		AssignedTo:  nil,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, actor.ID, events.EventTicketCreated, events.TicketCreatedPayload{
		TicketID: ticket.ID,
		Title:    ticket.Title,
		Priority: ticket.Priority,
	})
	return ticket, nil
}

// List returns tickets visible to the actor, newest first.
func (s *TicketService) List(ctx context.Context, actor policy.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		CreatedBy:  filter.CreatedBy,
		AssignedTo: filter.AssignedTo,
	}
	if filter.Status != nil {
		repoFilter.Statuses = []domain.TicketStatus{*filter.Status}
	}
	if filter.Priority != nil {
		repoFilter.Priorities = []domain.TicketPriority{*filter.Priority}
	}
	switch actor.Role {
	case domain.RoleAdmin:
		// no scope
	case domain.RoleAgent:
		id := actor.ID
		repoFilter.CreatedByOrAssignedTo = &id
		repoFilter.IncludeUnassignedFor = true
	default:
		id := actor.ID
		repoFilter.CreatedByOrAssignedTo = &id
	}
	return s.tickets.List(ctx, repoFilter)
}

// Get fetches a single ticket the actor may view.
func (s *TicketService) Get(ctx context.Context, actor policy.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRead(actor, ticket) {
		return nil, apperrors.NewForbidden("not authorized to view this ticket")
	}
	return ticket, nil
}

// Update applies a partial update gated by the policy table. Fields not
// supplied are left unchanged; every permitted update bumps updated_at.
func (s *TicketService) Update(ctx context.Context, actor policy.Actor, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	decision := policy.DecideUpdate(actor, ticket, patch.fieldSet())
	if !decision.Allow {
		return nil, apperrors.NewForbidden(decision.Reason)
	}

	if patch.Title != nil {
		ticket.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		ticket.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Status != nil {
		ticket.Status = *patch.Status
	}
	if patch.Priority != nil {
		ticket.Priority = *patch.Priority
	}
	if patch.AssigneeSet {
		ticket.AssignedTo = patch.Assignee
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, actor.ID, events.EventTicketUpdated, events.TicketUpdatedPayload{
		TicketID:   ticket.ID,
		Status:     ticket.Status,
		AssignedTo: ticket.AssignedTo,
		Fields:     patch.fieldNames(),
	})
	return ticket, nil
}

// Delete removes a ticket and, through the schema cascade, its comments.
// Only the creator or an admin may delete.
func (s *TicketService) Delete(ctx context.Context, actor policy.Actor, ticketID string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if !policy.CanDelete(actor, ticket) {
		return apperrors.NewForbidden("not authorized to delete this ticket")
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		return err
	}
	s.publishEvent(ctx, actor.ID, events.EventTicketDeleted, events.TicketDeletedPayload{TicketID: ticketID})
	return nil
}

// AddComment appends a comment on a ticket the actor participates in.
func (s *TicketService) AddComment(ctx context.Context, actor policy.Actor, ticketID, text string) (*domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("text required", nil)
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanComment(actor, ticket) {
		return nil, apperrors.NewForbidden("not authorized to comment on this ticket")
	}

	comment := &domain.Comment{
		TicketID: ticket.ID,
		AuthorID: actor.ID,
		Text:     text,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, actor.ID, events.EventCommentAdded, events.CommentAddedPayload{
		TicketID:  ticket.ID,
		CommentID: comment.ID,
		AuthorID:  comment.AuthorID,
	})
	return comment, nil
}

// ListComments returns a ticket's comments ascending by creation time.
func (s *TicketService) ListComments(ctx context.Context, actor policy.Actor, ticketID string) ([]domain.Comment, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanComment(actor, ticket) {
		return nil, apperrors.NewForbidden("not authorized to view comments for this ticket")
	}
	return s.comments.ListByTicket(ctx, ticket.ID)
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func validatePatch(patch TicketPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return apperrors.NewValidationError("title cannot be empty", nil)
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return apperrors.NewValidationError("description cannot be empty", nil)
	}
	if patch.Status != nil && !domain.ValidTicketStatus(*patch.Status) {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": string(*patch.Status)})
	}
	if patch.Priority != nil && !domain.ValidTicketPriority(*patch.Priority) {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(*patch.Priority)})
	}
	return nil
}

func (s *TicketService) publishEvent(ctx context.Context, actorID string, eventType events.EventType, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
