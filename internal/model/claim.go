// Package model contains the struct definitions shared across packages.
package model

import (
	"encoding/json"
	"time"
)

// ClaimStatus is the lifecycle state of a damage claim.
type ClaimStatus string

const (
	StatusDraft     ClaimStatus = "draft"
	StatusSubmitted ClaimStatus = "submitted"
)

// Valid reports whether s is one of the known statuses.
func (s ClaimStatus) Valid() bool {
	return s == StatusDraft || s == StatusSubmitted
}

// Policyholder is the person the policy is issued to.
type Policyholder struct {
	Name         string `json:"name"`
	PolicyNumber string `json:"policyNumber"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
}

// Vehicle identifies the insured vehicle.
type Vehicle struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	LicensePlate string `json:"licensePlate"`
	VIN          string `json:"vin"`
}

// Claim represents a row in the damage_reports table.
//
// EditToken is the per-claim mutation secret. It is set once at creation and
// must never appear in list output; the json tag keeps it out of encoded
// responses so only the create handler returns it explicitly.
type Claim struct {
	ID                string          `json:"id"`
	PublicID          string          `json:"publicId"`
	EditToken         string          `json:"-"`
	Status            ClaimStatus     `json:"status"`
	IncidentDate      *string         `json:"incidentDate"`
	DamageDescription string          `json:"damageDescription"`
	Policyholder      *Policyholder   `json:"policyholder"`
	Vehicle           *Vehicle        `json:"vehicle"`
	Extra             json.RawMessage `json:"extra,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// ExtractStatus is the lifecycle of the background text extraction for one
// attachment.
type ExtractStatus string

const (
	ExtractPending    ExtractStatus = "pending"
	ExtractProcessing ExtractStatus = "processing"
	ExtractDone       ExtractStatus = "done"
	ExtractFailed     ExtractStatus = "failed"
	ExtractSkipped    ExtractStatus = "skipped"
)

// Attachment represents a row in the report_files table. StoragePath is the
// object name inside the uploads bucket, namespaced by the claim's PublicID.
type Attachment struct {
	ID          string        `json:"id"`
	ClaimID     string        `json:"reportId"`
	StoragePath string        `json:"storagePath"`
	MIME        string        `json:"mime"`
	Filename    string        `json:"filename"`
	SizeBytes   int64         `json:"sizeBytes"`
	TextStatus  ExtractStatus `json:"textStatus"`
	TextExcerpt string        `json:"textExcerpt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ClaimPatch is a partial update. Nil fields are left untouched. EditToken,
// PublicID and CreatedAt are not representable here on purpose. An
// IncidentDate pointing at the empty string clears the stored date.
type ClaimPatch struct {
	Status            *ClaimStatus
	IncidentDate      *string
	DamageDescription *string
	Policyholder      *Policyholder
	Vehicle           *Vehicle
	Extra             json.RawMessage
}

// Empty reports whether the patch carries no changes at all.
func (p ClaimPatch) Empty() bool {
	return p.Status == nil && p.IncidentDate == nil && p.DamageDescription == nil &&
		p.Policyholder == nil && p.Vehicle == nil && p.Extra == nil
}

// ClaimFilter narrows List results.
type ClaimFilter struct {
	Status *ClaimStatus
	Limit  int
	Offset int
}
