package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Batch and winner lifecycle statuses. A batch never leaves CONFIRMED or VOID;
// a winner can still move CONFIRMED -> VOID through a revocation.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusVoid      = "VOID"
)

// RuleModeExcludeSourceWinners removes confirmed winners of the rule's source
// project/prize from the target's candidate pool.
const RuleModeExcludeSourceWinners = "EXCLUDE_SOURCE_WINNERS"

// Customer is the natural-person registry. The normalized phone number is the
// primary key; members and winner snapshots point back to it.
type Customer struct {
	Phone     string    `gorm:"size:20;primaryKey"`
	Name      string    `gorm:"size:128;not null;default:''"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code        string    `gorm:"size:64;uniqueIndex;not null"`
	Name        string    `gorm:"size:128;not null"`
	Department  string    `gorm:"size:64;not null;default:''"`
	Region      string    `gorm:"size:128;not null;default:''"`
	Description string    `gorm:"not null;default:''"`
	IsActive    bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
	Members     []ProjectMember
	Prizes      []Prize
}

func (p *Project) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProjectMember enrolls a customer into one project's pool. Members are
// deactivated when a pool is cleared, never deleted by the draw path.
type ProjectMember struct {
	ID            uint64    `gorm:"primaryKey"`
	ProjectID     uuid.UUID `gorm:"type:uuid;index:idx_members_project_active;not null;uniqueIndex:idx_members_project_customer"`
	CustomerPhone string    `gorm:"size:20;not null;uniqueIndex:idx_members_project_customer"`
	UID           string    `gorm:"column:uid;size:64;not null;index:idx_members_project_uid"`
	Name          string    `gorm:"size:128;not null"`
	Phone         string    `gorm:"size:20;not null;index"`
	IsActive      bool      `gorm:"not null;default:true;index:idx_members_project_active"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
	Customer      Customer  `gorm:"foreignKey:CustomerPhone;references:Phone"`
}

type Prize struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ProjectID     uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_prizes_project_name;index"`
	Name          string            `gorm:"size:128;not null;uniqueIndex:idx_prizes_project_name"`
	Sort          int               `gorm:"not null;default:0"`
	IsAll         bool              `gorm:"not null;default:false"`
	TotalCount    int               `gorm:"not null;default:1"`
	UsedCount     int               `gorm:"not null;default:0"`
	SeparateCount datatypes.JSONMap `gorm:"type:jsonb"`
	Description   string            `gorm:"not null;default:''"`
	IsActive      bool              `gorm:"not null;default:true"`
	CreatedAt     time.Time         `gorm:"not null"`
	UpdatedAt     time.Time         `gorm:"not null"`
}

func (p *Prize) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Remaining reports the unconsumed quota. Only meaningful while holding the
// prize lock.
func (p *Prize) Remaining() int {
	return p.TotalCount - p.UsedCount
}

// DrawBatch is one atomic draw attempt and owns the winners it staged.
type DrawBatch struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ProjectID   uuid.UUID         `gorm:"type:uuid;not null;index:idx_batches_project_prize_status"`
	PrizeID     uuid.UUID         `gorm:"type:uuid;not null;index:idx_batches_project_prize_status"`
	RequestedBy string            `gorm:"size:64;not null"`
	DrawCount   int               `gorm:"not null;default:1"`
	Status      string            `gorm:"size:16;not null;default:'PENDING';index:idx_batches_project_prize_status"`
	DrawScope   datatypes.JSONMap `gorm:"type:jsonb"`
	VoidReason  string            `gorm:"size:255;not null;default:''"`
	CreatedAt   time.Time         `gorm:"not null;index"`
	UpdatedAt   time.Time         `gorm:"not null"`
	Winners     []DrawWinner      `gorm:"foreignKey:BatchID"`
}

func (b *DrawBatch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// DrawWinner snapshots uid/name/phone at selection time so winner history
// survives member removal. CustomerPhone is a back-reference, not a live
// dependency.
type DrawWinner struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BatchID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProjectID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_winners_project_prize_status"`
	PrizeID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_winners_project_prize_status"`
	CustomerPhone string     `gorm:"size:20;not null"`
	UID           string     `gorm:"column:uid;size:64;not null"`
	Name          string     `gorm:"size:128;not null"`
	Phone         string     `gorm:"size:20;not null;index"`
	Status        string     `gorm:"size:16;not null;default:'PENDING';index:idx_winners_project_prize_status"`
	ConfirmedAt   *time.Time `gorm:""`
	VoidReason    string     `gorm:"size:255;not null;default:''"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (w *DrawWinner) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// ExclusionRule is a directional edge: confirmed winners under the source
// project (optionally one source prize) are disqualified from the target
// project (optionally one target prize). Read-only input to the draw path.
type ExclusionRule struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SourceProjectID uuid.UUID  `gorm:"type:uuid;not null"`
	SourcePrizeID   *uuid.UUID `gorm:"type:uuid"`
	TargetProjectID uuid.UUID  `gorm:"type:uuid;not null;index:idx_rules_target_enabled"`
	TargetPrizeID   *uuid.UUID `gorm:"type:uuid;index:idx_rules_target_enabled"`
	Mode            string     `gorm:"size:64;not null;default:'EXCLUDE_SOURCE_WINNERS'"`
	IsEnabled       bool       `gorm:"not null;default:true;index:idx_rules_target_enabled"`
	Description     string     `gorm:"size:255;not null;default:''"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (r *ExclusionRule) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
