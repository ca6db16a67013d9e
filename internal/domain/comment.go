package domain

import "time"

// Comment is an append-only note on a ticket. TicketID, AuthorID and
// CreatedAt are immutable; comments have no edit or delete operation.
type Comment struct {
	ID        string
	TicketID  string
	AuthorID  string
	Text      string
	CreatedAt time.Time
}
