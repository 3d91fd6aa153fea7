// SPDX-License-Identifier: GPL-3.0-only

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLog is an append-only record of one lifecycle action. Entries are
// never mutated; they are removed only when the owning account is retired.
type ActivityLog struct {
	ID        uint          `gorm:"primaryKey"`
	EID       uuid.UUID     `gorm:"type:uuid;not null"`
	Phone     string        `gorm:"size:20;not null;index"`
	Action    string        `gorm:"size:50;not null"`
	Status    AccountStatus `gorm:"size:20;not null"`
	Detail    *string       `gorm:"type:text;default:null"`
	CreatedAt time.Time
}

func (entry *ActivityLog) BeforeCreate(tx *gorm.DB) (err error) {
	entry.EID = uuid.New()
	return
}

func init() {
	AllModels = append(AllModels, &ActivityLog{})
}
