package rules

import "time"

type Rule struct {
	ID         string
	Name       string
	Expression string // CEL expression; true means spam
	Priority   int
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
