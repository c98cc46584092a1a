package draw

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lucky-draw/internal/db"
)

// Scope optionally narrows a preview to explicit members. Both lists filter
// by intersection: when uids and phones are given, a candidate must match
// both. An empty scope means the whole active pool of the project.
type Scope struct {
	IncludeUIDs   []string `json:"include_uids,omitempty"`
	IncludePhones []string `json:"include_phones,omitempty"`
}

// snapshot renders the scope for storage on the batch, so a batch records
// exactly what it was drawn against.
func (s Scope) snapshot() datatypes.JSONMap {
	snap := datatypes.JSONMap{}
	if len(s.IncludeUIDs) > 0 {
		uids := make([]any, len(s.IncludeUIDs))
		for i, uid := range s.IncludeUIDs {
			uids[i] = uid
		}
		snap["include_uids"] = uids
	}
	if len(s.IncludePhones) > 0 {
		phones := make([]any, len(s.IncludePhones))
		for i, phone := range s.IncludePhones {
			phones[i] = db.NormalizePhone(phone)
		}
		snap["include_phones"] = phones
	}
	return snap
}

// resolveCandidates computes the live candidate set for one prize: active
// members of the project, narrowed by scope, minus members barred by the
// prize's win-uniqueness rule, minus phones disqualified by exclusion rules.
// Order is irrelevant; selection is randomized downstream. Read-only.
//
// is_all=false: one confirmed win per person per project, any prize.
// is_all=true: repeat wins allowed, but never twice for the same prize.
func resolveCandidates(tx *gorm.DB, prize *db.Prize, scope Scope) ([]db.ProjectMember, error) {
	q := tx.Model(&db.ProjectMember{}).
		Where("project_id = ? AND is_active = ?", prize.ProjectID, true)

	if len(scope.IncludeUIDs) > 0 {
		q = q.Where("uid IN ?", scope.IncludeUIDs)
	}
	if len(scope.IncludePhones) > 0 {
		phones := make([]string, len(scope.IncludePhones))
		for i, phone := range scope.IncludePhones {
			phones[i] = db.NormalizePhone(phone)
		}
		q = q.Where("phone IN ?", phones)
	}

	confirmed := tx.Model(&db.DrawWinner{}).
		Select("phone").
		Where("project_id = ? AND status = ?", prize.ProjectID, db.StatusConfirmed)
	if prize.IsAll {
		confirmed = confirmed.Where("prize_id = ?", prize.ID)
	}
	q = q.Where("phone NOT IN (?)", confirmed)

	excluded, err := excludedPhones(tx, prize.ProjectID, prize.ID)
	if err != nil {
		return nil, err
	}
	if len(excluded) > 0 {
		q = q.Where("phone NOT IN ?", excluded)
	}

	var members []db.ProjectMember
	if err := q.Find(&members).Error; err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	return members, nil
}

// excludedPhones evaluates the enabled exclusion rules targeting (project,
// prize): for each, the confirmed winner phones under the rule's source
// project (narrowed to its source prize when set) are unioned. A rule with no
// target prize applies to every prize of the target project. No rules means
// no winner queries at all.
func excludedPhones(tx *gorm.DB, projectID, prizeID uuid.UUID) ([]string, error) {
	var rules []db.ExclusionRule
	err := tx.
		Where("target_project_id = ? AND is_enabled = ?", projectID, true).
		Where("target_prize_id IS NULL OR target_prize_id = ?", prizeID).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("load exclusion rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	set := make(map[string]struct{})
	for _, rule := range rules {
		q := tx.Model(&db.DrawWinner{}).
			Where("project_id = ? AND status = ?", rule.SourceProjectID, db.StatusConfirmed)
		if rule.SourcePrizeID != nil {
			q = q.Where("prize_id = ?", *rule.SourcePrizeID)
		}
		var phones []string
		if err := q.Pluck("phone", &phones).Error; err != nil {
			return nil, fmt.Errorf("load source winners for rule %s: %w", rule.ID, err)
		}
		for _, phone := range phones {
			set[phone] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for phone := range set {
		out = append(out, phone)
	}
	return out, nil
}
