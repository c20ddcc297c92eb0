package models

import "database/sql"

// TicketRow mirrors one row of unsolved_tickets.
type TicketRow struct {
	ID            string
	Status        string
	Subject       string
	Score         sql.NullFloat64
	RequesterID   string
	RequesterName string
	AssigneeID    string
	AssigneeName  string
	CreatedAt     string
	UpdatedAt     string
	AnalyzedAt    sql.NullString
}
