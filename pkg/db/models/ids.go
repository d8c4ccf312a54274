package models

import "github.com/google/uuid"

// assignID fills a zero primary key so rows can be created on drivers
// without a uuid default (sqlite in dev and tests).
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
