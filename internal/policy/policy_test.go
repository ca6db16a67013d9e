package policy

import (
	"strings"
	"testing"

	"github.com/crestline-io/helpdesk-service/internal/domain"
)

func ticket(createdBy string, assignedTo *string, status domain.TicketStatus) *domain.Ticket {
	return &domain.Ticket{
		ID:          "t1",
		Title:       "printer on fire",
		Description: "it is actually on fire",
		Status:      status,
		Priority:    domain.TicketPriorityMedium,
		CreatedBy:   createdBy,
		AssignedTo:  assignedTo,
	}
}

func ptr(s string) *string { return &s }

func TestCanRead(t *testing.T) {
	cases := []struct {
		name   string
		actor  Actor
		ticket *domain.Ticket
		want   bool
	}{
		{"admin sees any ticket", Actor{"adm", domain.RoleAdmin}, ticket("u1", ptr("a1"), domain.TicketStatusOpen), true},
		{"agent sees own assignment", Actor{"a1", domain.RoleAgent}, ticket("u1", ptr("a1"), domain.TicketStatusOpen), true},
		{"agent sees unassigned", Actor{"a1", domain.RoleAgent}, ticket("u1", nil, domain.TicketStatusOpen), true},
		{"agent sees ticket they created", Actor{"a1", domain.RoleAgent}, ticket("a1", ptr("a2"), domain.TicketStatusOpen), true},
		{"agent blind to another agent's ticket", Actor{"a1", domain.RoleAgent}, ticket("u1", ptr("a2"), domain.TicketStatusOpen), false},
		{"user sees own ticket", Actor{"u1", domain.RoleUser}, ticket("u1", nil, domain.TicketStatusOpen), true},
		{"user sees assigned ticket", Actor{"u1", domain.RoleUser}, ticket("u2", ptr("u1"), domain.TicketStatusOpen), true},
		{"user blind to others", Actor{"u1", domain.RoleUser}, ticket("u2", nil, domain.TicketStatusOpen), false},
		{"unknown role denied", Actor{"x", domain.Role("ghost")}, ticket("x", nil, domain.TicketStatusOpen), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRead(tc.actor, tc.ticket); got != tc.want {
				t.Errorf("CanRead = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVisibilityMonotonic(t *testing.T) {
	// every ticket an agent or user can see, an admin can see too
	tickets := []*domain.Ticket{
		ticket("u1", nil, domain.TicketStatusOpen),
		ticket("u1", ptr("a1"), domain.TicketStatusInProgress),
		ticket("a1", ptr("a2"), domain.TicketStatusClosed),
	}
	admin := Actor{"adm", domain.RoleAdmin}
	for _, tk := range tickets {
		for _, actor := range []Actor{{"a1", domain.RoleAgent}, {"u1", domain.RoleUser}} {
			if CanRead(actor, tk) && !CanRead(admin, tk) {
				t.Errorf("admin cannot read ticket visible to %s", actor.Role)
			}
		}
	}
}

func TestDecideUpdateAdmin(t *testing.T) {
	d := DecideUpdate(Actor{"adm", domain.RoleAdmin}, ticket("u1", ptr("a1"), domain.TicketStatusClosed),
		NewFieldSet(FieldTitle, FieldDescription, FieldStatus, FieldPriority, FieldAssignee))
	if !d.Allow {
		t.Fatalf("admin update denied: %s", d.Reason)
	}
	for f := FieldTitle; f <= FieldAssignee; f++ {
		if !d.Fields.Has(f) {
			t.Errorf("admin missing mutable field %s", f)
		}
	}
}

func TestDecideUpdateAgent(t *testing.T) {
	cases := []struct {
		name   string
		actor  Actor
		ticket *domain.Ticket
		patch  FieldSet
		allow  bool
	}{
		{"claim unassigned ticket", Actor{"a1", domain.RoleAgent}, ticket("u1", nil, domain.TicketStatusOpen), NewFieldSet(FieldStatus, FieldAssignee), true},
		{"update own assignment", Actor{"a1", domain.RoleAgent}, ticket("u1", ptr("a1"), domain.TicketStatusInProgress), NewFieldSet(FieldStatus, FieldPriority), true},
		{"reassign another agent's ticket", Actor{"a2", domain.RoleAgent}, ticket("u1", ptr("a1"), domain.TicketStatusInProgress), NewFieldSet(FieldAssignee), false},
		{"touch status on another agent's ticket", Actor{"a2", domain.RoleAgent}, ticket("u1", ptr("a1"), domain.TicketStatusOpen), NewFieldSet(FieldStatus), false},
		{"title change blocked for non-creator", Actor{"a1", domain.RoleAgent}, ticket("u1", nil, domain.TicketStatusOpen), NewFieldSet(FieldTitle), false},
		{"agent-creator edits title", Actor{"a1", domain.RoleAgent}, ticket("a1", nil, domain.TicketStatusOpen), NewFieldSet(FieldTitle, FieldDescription), true},
		{"agent-creator edits title on ticket held by peer", Actor{"a1", domain.RoleAgent}, ticket("a1", ptr("a2"), domain.TicketStatusInProgress), NewFieldSet(FieldTitle), true},
		{"agent-creator cannot steal assignment from peer", Actor{"a1", domain.RoleAgent}, ticket("a1", ptr("a2"), domain.TicketStatusInProgress), NewFieldSet(FieldAssignee), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := DecideUpdate(tc.actor, tc.ticket, tc.patch)
			if d.Allow != tc.allow {
				t.Errorf("Allow = %v (%s), want %v", d.Allow, d.Reason, tc.allow)
			}
		})
	}
}

func TestDecideUpdateUser(t *testing.T) {
	cases := []struct {
		name   string
		actor  Actor
		ticket *domain.Ticket
		patch  FieldSet
		allow  bool
	}{
		{"creator edits open ticket", Actor{"u1", domain.RoleUser}, ticket("u1", nil, domain.TicketStatusOpen), NewFieldSet(FieldTitle, FieldDescription, FieldPriority), true},
		{"creator cannot set status", Actor{"u1", domain.RoleUser}, ticket("u1", nil, domain.TicketStatusOpen), NewFieldSet(FieldStatus), false},
		{"creator cannot set assignee", Actor{"u1", domain.RoleUser}, ticket("u1", nil, domain.TicketStatusOpen), NewFieldSet(FieldAssignee), false},
		{"creator locked out once in progress", Actor{"u1", domain.RoleUser}, ticket("u1", ptr("a1"), domain.TicketStatusInProgress), NewFieldSet(FieldPriority), false},
		{"creator-assignee may edit after open", Actor{"u1", domain.RoleUser}, ticket("u1", ptr("u1"), domain.TicketStatusInProgress), NewFieldSet(FieldPriority), true},
		{"non-creator user has no rights", Actor{"u2", domain.RoleUser}, ticket("u1", ptr("u2"), domain.TicketStatusOpen), NewFieldSet(FieldTitle), false},
		{"creator locked out of closed ticket", Actor{"u1", domain.RoleUser}, ticket("u1", nil, domain.TicketStatusClosed), NewFieldSet(FieldTitle), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := DecideUpdate(tc.actor, tc.ticket, tc.patch)
			if d.Allow != tc.allow {
				t.Errorf("Allow = %v (%s), want %v", d.Allow, d.Reason, tc.allow)
			}
		})
	}
}

func TestDecideUpdateDenialNamesFields(t *testing.T) {
	d := DecideUpdate(Actor{"u1", domain.RoleUser}, ticket("u1", nil, domain.TicketStatusOpen),
		NewFieldSet(FieldStatus, FieldAssignee))
	if d.Allow {
		t.Fatal("expected denial")
	}
	if !strings.Contains(d.Reason, "status") || !strings.Contains(d.Reason, "assignedTo") {
		t.Errorf("reason %q does not name the blocked fields", d.Reason)
	}
}

func TestCanDelete(t *testing.T) {
	tk := ticket("u1", ptr("a1"), domain.TicketStatusOpen)
	cases := []struct {
		actor Actor
		want  bool
	}{
		{Actor{"adm", domain.RoleAdmin}, true},
		{Actor{"u1", domain.RoleUser}, true},
		{Actor{"a1", domain.RoleAgent}, false},
		{Actor{"u2", domain.RoleUser}, false},
	}
	for _, tc := range cases {
		if got := CanDelete(tc.actor, tk); got != tc.want {
			t.Errorf("CanDelete(%s %s) = %v, want %v", tc.actor.Role, tc.actor.ID, got, tc.want)
		}
	}
}

func TestCanComment(t *testing.T) {
	tk := ticket("u1", ptr("u3"), domain.TicketStatusOpen)
	cases := []struct {
		actor Actor
		want  bool
	}{
		{Actor{"adm", domain.RoleAdmin}, true},
		{Actor{"a9", domain.RoleAgent}, true},
		{Actor{"u1", domain.RoleUser}, true},
		{Actor{"u3", domain.RoleUser}, true},
		{Actor{"u2", domain.RoleUser}, false},
	}
	for _, tc := range cases {
		if got := CanComment(tc.actor, tk); got != tc.want {
			t.Errorf("CanComment(%s %s) = %v, want %v", tc.actor.Role, tc.actor.ID, got, tc.want)
		}
	}
}

func TestFieldSet(t *testing.T) {
	s := NewFieldSet(FieldTitle, FieldPriority)
	if !s.Has(FieldTitle) || !s.Has(FieldPriority) {
		t.Error("missing members")
	}
	if s.Has(FieldStatus) || s.Has(FieldAssignee) {
		t.Error("unexpected members")
	}
	u := s.Union(NewFieldSet(FieldStatus))
	if !u.Has(FieldStatus) || !u.Has(FieldTitle) {
		t.Error("union lost members")
	}
}
