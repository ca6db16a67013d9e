// Package policy holds the authorization rules for tickets: who may read,
// mutate, comment on, or delete a ticket given their role and their
// relationship to it (creator / assignee). Decisions are pure functions of
// the actor and the current ticket, evaluated once per request by the
// service layer; handlers never re-derive role checks themselves.
package policy

import (
	"strings"

	"github.com/crestline-io/helpdesk-service/internal/domain"
)

// Actor is the authenticated caller a decision is made for.
type Actor struct {
	ID   string
	Role domain.Role
}

// Field identifies a mutable ticket field.
type Field uint8

const (
	FieldTitle Field = iota
	FieldDescription
	FieldStatus
	FieldPriority
	FieldAssignee
)

var fieldNames = map[Field]string{
	FieldTitle:       "title",
	FieldDescription: "description",
	FieldStatus:      "status",
	FieldPriority:    "priority",
	FieldAssignee:    "assignedTo",
}

func (f Field) String() string { return fieldNames[f] }

// FieldSet is a set of ticket fields an actor may change.
type FieldSet uint8

// NewFieldSet builds a set from the given fields.
func NewFieldSet(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s |= 1 << f
	}
	return s
}

// Has reports whether the field is in the set.
func (s FieldSet) Has(f Field) bool { return s&(1<<f) != 0 }

// Union returns the combination of both sets.
func (s FieldSet) Union(other FieldSet) FieldSet { return s | other }

// Decision is the outcome of a policy evaluation. For updates, Fields is
// the set of fields the actor would have been allowed to change.
type Decision struct {
	Allow  bool
	Fields FieldSet
	Reason string
}

func deny(reason string) Decision { return Decision{Allow: false, Reason: reason} }

// updateRule yields the mutable field set for an actor on a ticket, or
// ok=false when the actor has no update rights on it at all. One entry per
// role keeps the conditions in a single table instead of scattered across
// handlers.
type updateRule func(actor Actor, t *domain.Ticket) (fields FieldSet, ok bool, reason string)

var updateRules = map[domain.Role]updateRule{
	domain.RoleAdmin: func(Actor, *domain.Ticket) (FieldSet, bool, string) {
		return NewFieldSet(FieldTitle, FieldDescription, FieldStatus, FieldPriority, FieldAssignee), true, ""
	},
	domain.RoleAgent: func(actor Actor, t *domain.Ticket) (FieldSet, bool, string) {
		var fields FieldSet
		if t.AssignedTo == nil || t.IsAssignedTo(actor.ID) {
			fields = NewFieldSet(FieldStatus, FieldPriority, FieldAssignee)
		}
		if t.CreatedBy == actor.ID {
			fields = fields.Union(NewFieldSet(FieldTitle, FieldDescription))
		}
		if fields == 0 {
			return 0, false, "ticket is assigned to another agent"
		}
		return fields, true, ""
	},
	domain.RoleUser: func(actor Actor, t *domain.Ticket) (FieldSet, bool, string) {
		if t.CreatedBy != actor.ID {
			return 0, false, "only the ticket creator may update it"
		}
		if t.Status != domain.TicketStatusOpen && !t.IsAssignedTo(actor.ID) {
			return 0, false, "ticket is no longer open"
		}
		return NewFieldSet(FieldTitle, FieldDescription, FieldPriority), true, ""
	},
}

// CanRead reports whether the actor may view the ticket. Admins see all
// tickets; agents see tickets assigned to them, unassigned tickets, and
// their own; users see tickets they created or are assigned to.
func CanRead(actor Actor, t *domain.Ticket) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleAgent:
		return t.AssignedTo == nil || t.IsAssignedTo(actor.ID) || t.CreatedBy == actor.ID
	case domain.RoleUser:
		return t.CreatedBy == actor.ID || t.IsAssignedTo(actor.ID)
	}
	return false
}

// CanComment reports whether the actor may read or add comments on the
// ticket: its creator, its assignee, or any agent or admin.
func CanComment(actor Actor, t *domain.Ticket) bool {
	if actor.Role == domain.RoleAdmin || actor.Role == domain.RoleAgent {
		return true
	}
	return t.CreatedBy == actor.ID || t.IsAssignedTo(actor.ID)
}

// CanDelete reports whether the actor may delete the ticket: its creator
// or an admin.
func CanDelete(actor Actor, t *domain.Ticket) bool {
	return actor.Role == domain.RoleAdmin || t.CreatedBy == actor.ID
}

// DecideUpdate evaluates an update request against the role table. The
// patch set lists the fields the request proposes to change; the decision
// denies when any of them falls outside the actor's mutable set.
func DecideUpdate(actor Actor, t *domain.Ticket, patch FieldSet) Decision {
	rule, known := updateRules[actor.Role]
	if !known {
		return deny("unknown role")
	}
	fields, ok, reason := rule(actor, t)
	if !ok {
		return deny(reason)
	}
	var blocked []string
	for f := FieldTitle; f <= FieldAssignee; f++ {
		if patch.Has(f) && !fields.Has(f) {
			blocked = append(blocked, f.String())
		}
	}
	if len(blocked) > 0 {
		return deny("not permitted to change " + strings.Join(blocked, ", "))
	}
	return Decision{Allow: true, Fields: fields}
}
