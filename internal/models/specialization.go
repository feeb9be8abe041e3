package models

import "time"

// EducatorSpecialization records an educator's competence in one subject.
// Read-only for the doubt subsystem.
type EducatorSpecialization struct {
	ID                string    `db:"id" json:"id"`
	EducatorID        string    `db:"educator_id" json:"educator_id"`
	Subject           string    `db:"subject" json:"subject"`
	ProficiencyLevel  int       `db:"proficiency_level" json:"proficiency_level"`
	YearsOfExperience int       `db:"years_of_experience" json:"years_of_experience"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// EducatorCandidate is a ranked auto-assignment candidate.
type EducatorCandidate struct {
	EducatorID       string  `db:"educator_id" json:"educator_id"`
	ProficiencyLevel int     `db:"proficiency_level" json:"proficiency_level"`
	OpenDoubtCount   int     `db:"open_doubt_count" json:"open_doubt_count"`
	Score            float64 `db:"score" json:"score"`
}
