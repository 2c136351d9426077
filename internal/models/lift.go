package models

import (
	"fmt"
	"time"
)

type LiftStatus string

const (
	LiftStatusActive    LiftStatus = "active"
	LiftStatusCompleted LiftStatus = "completed"
)

// LiftRow is one altitude band of a lift. Field names follow the pilot wire
// protocol: alt in feet, jumpers exiting at that altitude, overflights the
// number of passes needed over the drop zone.
type LiftRow struct {
	Alt         int `json:"alt"`
	Jumpers     int `json:"jumpers"`
	Overflights int `json:"overflights"`
}

type LiftTotals struct {
	Jumpers  int `json:"jumpers"`
	Canopies int `json:"canopies"`
}

// Lift is one planned or executed ascent. The id is assigned by the manifest
// operator, not generated. Upserts replace the record wholesale, rows
// included.
type Lift struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Status    LiftStatus `json:"status"`
	Rows      []LiftRow  `json:"rows"`
	Totals    LiftTotals `json:"totals"`
	CreatedAt time.Time  `json:"ts"`
}

// DefaultLiftName returns the display name used when the operator supplies
// none.
func DefaultLiftName(id int64) string {
	return fmt.Sprintf("Lift %d", id)
}
