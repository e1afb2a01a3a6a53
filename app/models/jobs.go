package models

import "time"

// Job is a job post. Creating one consumes a unit of the owner's quota.
type Job struct {
	ID          string    `db:"id" json:"id"`
	AccountID   string    `db:"account_id" json:"accountId"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Company     string    `db:"company" json:"company"`
	Country     string    `db:"country" json:"country"`
	Category    string    `db:"category" json:"category"`
	Salary      int64     `db:"salary" json:"salary"`
	Email       string    `db:"email" json:"email"`
	Contact     string    `db:"contact" json:"contact"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
