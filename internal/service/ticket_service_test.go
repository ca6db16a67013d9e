package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/crestline-io/helpdesk-service/internal/domain"
	"github.com/crestline-io/helpdesk-service/internal/policy"
	"github.com/crestline-io/helpdesk-service/internal/repository"
	apperrors "github.com/crestline-io/helpdesk-service/pkg/util"
)

// in-memory repositories standing in for the pgx implementations

type memTicketRepo struct {
	tickets map[string]domain.Ticket
	seq     int
	clock   time.Time
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: map[string]domain.Ticket{}, clock: time.Now()}
}

func (r *memTicketRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.seq++
	ticket.ID = fmt.Sprintf("t%d", r.seq)
	now := r.tick()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.tick()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (r *memTicketRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	return nil
}

func (r *memTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if !matchFilter(ticket, filter) {
			continue
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func matchFilter(t domain.Ticket, f repository.TicketFilter) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssignedTo != nil && !t.IsAssignedTo(*f.AssignedTo) {
		return false
	}
	if f.CreatedByOrAssignedTo != nil {
		id := *f.CreatedByOrAssignedTo
		in := t.CreatedBy == id || t.IsAssignedTo(id)
		if f.IncludeUnassignedFor && t.AssignedTo == nil {
			in = true
		}
		if !in {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

type memCommentRepo struct {
	comments []domain.Comment
	seq      int
}

func (r *memCommentRepo) Create(_ context.Context, comment *domain.Comment) error {
	r.seq++
	comment.ID = fmt.Sprintf("c%d", r.seq)
	comment.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Second)
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *memCommentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	var result []domain.Comment
	for _, c := range r.comments {
		if c.TicketID == ticketID {
			result = append(result, c)
		}
	}
	return result, nil
}

func newTestTicketService() (*TicketService, *memTicketRepo, *memCommentRepo) {
	tickets := newMemTicketRepo()
	comments := &memCommentRepo{}
	svc := NewTicketService(TicketDependencies{TicketRepo: tickets, CommentRepo: comments})
	return svc, tickets, comments
}

var (
	userA  = policy.Actor{ID: "user-a", Role: domain.RoleUser}
	userD  = policy.Actor{ID: "user-d", Role: domain.RoleUser}
	agentB = policy.Actor{ID: "agent-b", Role: domain.RoleAgent}
	agentC = policy.Actor{ID: "agent-c", Role: domain.RoleAgent}
	admin  = policy.Actor{ID: "admin-z", Role: domain.RoleAdmin}
)

func errCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected DomainError, got %T: %v", err, err)
	}
	return de.Code
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.TicketStatus) *domain.TicketStatus       { return &s }
func priorityPtr(p domain.TicketPriority) *domain.TicketPriority { return &p }

func TestCreateForcesServerControlledFields(t *testing.T) {
	svc, _, _ := newTestTicketService()

	ticket, err := svc.Create(context.Background(), userA, TicketCreateInput{
		Title:       "  disk full  ",
		Description: "no space left on device",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Errorf("status = %q, want open", ticket.Status)
	}
	if ticket.Priority != domain.TicketPriorityMedium {
		t.Errorf("priority = %q, want medium default", ticket.Priority)
	}
	if ticket.AssignedTo != nil {
		t.Errorf("assignee = %v, want unset", *ticket.AssignedTo)
	}
	if ticket.CreatedBy != userA.ID {
		t.Errorf("creator = %q, want caller", ticket.CreatedBy)
	}
	if ticket.Title != "disk full" {
		t.Errorf("title = %q, want trimmed", ticket.Title)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestTicketService()

	_, err := svc.Create(context.Background(), userA, TicketCreateInput{Title: "   ", Description: "x"})
	if code := errCode(t, err); code != "VALIDATION_FAILED" {
		t.Errorf("blank title: code = %s", code)
	}
	_, err = svc.Create(context.Background(), userA, TicketCreateInput{Title: "x", Description: "y", Priority: "urgent"})
	if code := errCode(t, err); code != "VALIDATION_FAILED" {
		t.Errorf("bad priority: code = %s", code)
	}
}

func TestPartialUpdateTouchesOnlySuppliedFields(t *testing.T) {
	svc, _, _ := newTestTicketService()
	ctx := context.Background()

	created, err := svc.Create(ctx, userA, TicketCreateInput{Title: "vpn down", Description: "cannot connect"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, userA, created.ID, TicketPatch{Priority: priorityPtr(domain.TicketPriorityHigh)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Priority != domain.TicketPriorityHigh {
		t.Errorf("priority = %q, want high", updated.Priority)
	}
	if updated.Title != created.Title || updated.Description != created.Description {
		t.Error("title/description changed by priority-only patch")
	}
	if updated.Status != created.Status || updated.AssignedTo != nil {
		t.Error("status/assignee changed by priority-only patch")
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Error("updated_at not bumped")
	}
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	svc, tickets, _ := newTestTicketService()
	ctx := context.Background()

	created, _ := svc.Create(ctx, userA, TicketCreateInput{Title: "a", Description: "b"})
	_, err := svc.Update(ctx, admin, created.ID, TicketPatch{Status: statusPtr("resolved")})
	if code := errCode(t, err); code != "VALIDATION_FAILED" {
		t.Errorf("code = %s, want VALIDATION_FAILED", code)
	}
	stored, _ := tickets.GetByID(ctx, created.ID)
	if stored.Status != domain.TicketStatusOpen {
		t.Errorf("status mutated to %q despite validation failure", stored.Status)
	}
}

func TestAssignmentLifecycleScenario(t *testing.T) {
	svc, _, _ := newTestTicketService()
	ctx := context.Background()

	created, err := svc.Create(ctx, userA, TicketCreateInput{Title: "laptop dead", Description: "won't boot"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// agent B claims the unassigned ticket and starts work
	updated, err := svc.Update(ctx, agentB, created.ID, TicketPatch{
		Status:      statusPtr(domain.TicketStatusInProgress),
		Assignee:    strPtr(agentB.ID),
		AssigneeSet: true,
	})
	if err != nil {
		t.Fatalf("agent claim: %v", err)
	}
	if !updated.IsAssignedTo(agentB.ID) || updated.Status != domain.TicketStatusInProgress {
		t.Fatalf("claim did not stick: %+v", updated)
	}

	// creator can no longer touch it: not open, not the assignee
	_, err = svc.Update(ctx, userA, created.ID, TicketPatch{Priority: priorityPtr(domain.TicketPriorityLow)})
	if code := errCode(t, err); code != "FORBIDDEN" {
		t.Errorf("creator update after claim: code = %s, want FORBIDDEN", code)
	}

	// a different agent cannot take it over
	_, err = svc.Update(ctx, agentC, created.ID, TicketPatch{Assignee: strPtr(agentC.ID), AssigneeSet: true})
	if code := errCode(t, err); code != "FORBIDDEN" {
		t.Errorf("reassign by other agent: code = %s, want FORBIDDEN", code)
	}

	// admin can clear the assignment
	cleared, err := svc.Update(ctx, admin, created.ID, TicketPatch{AssigneeSet: true})
	if err != nil {
		t.Fatalf("admin unassign: %v", err)
	}
	if cleared.AssignedTo != nil {
		t.Error("admin could not clear assignee")
	}
}

func TestDeleteAuthorization(t *testing.T) {
	svc, tickets, _ := newTestTicketService()
	ctx := context.Background()

	created, _ := svc.Create(ctx, userA, TicketCreateInput{Title: "a", Description: "b"})

	if err := svc.Delete(ctx, userD, created.ID); errCode(t, err) != "FORBIDDEN" {
		t.Error("unrelated user could delete")
	}
	if err := svc.Delete(ctx, agentB, created.ID); errCode(t, err) != "FORBIDDEN" {
		t.Error("non-creator agent could delete")
	}
	if err := svc.Delete(ctx, userA, created.ID); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
	if _, err := tickets.GetByID(ctx, created.ID); err != pgx.ErrNoRows {
		t.Error("ticket still present after delete")
	}

	created2, _ := svc.Create(ctx, userA, TicketCreateInput{Title: "c", Description: "d"})
	if err := svc.Delete(ctx, admin, created2.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestNotFoundTakesPrecedenceOverForbidden(t *testing.T) {
	svc, _, _ := newTestTicketService()
	ctx := context.Background()

	_, err := svc.Get(ctx, userD, "missing")
	if code := errCode(t, err); code != "NOT_FOUND" {
		t.Errorf("missing ticket: code = %s, want NOT_FOUND", code)
	}

	created, _ := svc.Create(ctx, userA, TicketCreateInput{Title: "a", Description: "b"})
	_, err = svc.Get(ctx, userD, created.ID)
	if code := errCode(t, err); code != "FORBIDDEN" {
		t.Errorf("invisible ticket: code = %s, want FORBIDDEN", code)
	}
}

func TestListVisibilityScopes(t *testing.T) {
	svc, _, _ := newTestTicketService()
	ctx := context.Background()

	t1, _ := svc.Create(ctx, userA, TicketCreateInput{Title: "one", Description: "d"})
	t2, _ := svc.Create(ctx, userD, TicketCreateInput{Title: "two", Description: "d"})
	t3, _ := svc.Create(ctx, userD, TicketCreateInput{Title: "three", Description: "d"})
	if _, err := svc.Update(ctx, agentC, t3.ID, TicketPatch{Assignee: strPtr(agentC.ID), AssigneeSet: true}); err != nil {
		t.Fatalf("seed assign: %v", err)
	}

	ids := func(list []domain.Ticket) map[string]bool {
		m := map[string]bool{}
		for _, tk := range list {
			m[tk.ID] = true
		}
		return m
	}

	all, err := svc.List(ctx, admin, TicketListFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("admin list = %d tickets (%v), want 3", len(all), err)
	}
	// newest first
	if all[0].ID != t3.ID || all[2].ID != t1.ID {
		t.Errorf("admin list order = %s..%s, want newest first", all[0].ID, all[2].ID)
	}

	agentList, _ := svc.List(ctx, agentB, TicketListFilter{})
	got := ids(agentList)
	if !got[t1.ID] || !got[t2.ID] || got[t3.ID] {
		t.Errorf("agent-b sees %v, want unassigned only", got)
	}

	userList, _ := svc.List(ctx, userA, TicketListFilter{})
	got = ids(userList)
	if !got[t1.ID] || got[t2.ID] || got[t3.ID] {
		t.Errorf("user-a sees %v, want own only", got)
	}

	open := domain.TicketStatusOpen
	filtered, _ := svc.List(ctx, admin, TicketListFilter{Status: &open, CreatedBy: &userD.ID})
	got = ids(filtered)
	if got[t1.ID] || !got[t2.ID] || !got[t3.ID] {
		t.Errorf("filtered list = %v", got)
	}
}

func TestComments(t *testing.T) {
	svc, _, _ := newTestTicketService()
	ctx := context.Background()

	created, _ := svc.Create(ctx, userA, TicketCreateInput{Title: "a", Description: "b"})

	if _, err := svc.AddComment(ctx, userA, created.ID, "   "); errCode(t, err) != "VALIDATION_FAILED" {
		t.Error("blank comment accepted")
	}
	if _, err := svc.AddComment(ctx, userD, created.ID, "hi"); errCode(t, err) != "FORBIDDEN" {
		t.Error("unrelated user could comment")
	}

	first, err := svc.AddComment(ctx, userA, created.ID, "any update?")
	if err != nil {
		t.Fatalf("creator comment: %v", err)
	}
	if first.AuthorID != userA.ID {
		t.Errorf("author = %q, want caller", first.AuthorID)
	}
	second, err := svc.AddComment(ctx, agentB, created.ID, "looking into it")
	if err != nil {
		t.Fatalf("agent comment: %v", err)
	}

	comments, err := svc.ListComments(ctx, userA, created.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 || comments[0].ID != first.ID || comments[1].ID != second.ID {
		t.Errorf("comments not ascending by creation: %+v", comments)
	}

	if _, err := svc.ListComments(ctx, userD, created.ID); errCode(t, err) != "FORBIDDEN" {
		t.Error("unrelated user could list comments")
	}
	if _, err := svc.ListComments(ctx, userA, "missing"); errCode(t, err) != "NOT_FOUND" {
		t.Error("missing ticket comment list should be not-found")
	}
}
