package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncState is the lifecycle state of an entry's photo asset.
type SyncState string

const (
	SyncPending  SyncState = "pending"
	SyncUploaded SyncState = "uploaded"
	SyncFailed   SyncState = "failed"
	SyncDeleted  SyncState = "deleted"
)

// AnalysisStatus is the AI-description workflow state of a meal.
type AnalysisStatus string

const (
	AnalysisNone      AnalysisStatus = "none"
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisAnalyzing AnalysisStatus = "analyzing"
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
)

// MealType is a category a meal belongs to (Breakfast, Lunch, ...).
// DisplayName is unique among all types, compared case- and
// whitespace-insensitively.
type MealType struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	IsSystem    bool      `json:"isSystem"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Meal groups the entries logged for one meal type on one calendar day.
// CreatedAt holds the start of that day. At most one meal exists per
// (TypeID, day) pair.
type Meal struct {
	ID             uuid.UUID      `json:"id"`
	TypeID         uuid.UUID      `json:"typeId"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	AIDescription  *string        `json:"aiDescription,omitempty"`
	UserNotes      *string        `json:"userNotes,omitempty"`
	AnalysisStatus AnalysisStatus `json:"aiAnalysisStatus"`
}

// MealEntry is one logged photo-capture event within a meal.
type MealEntry struct {
	ID            uuid.UUID  `json:"id"`
	MealID        uuid.UUID  `json:"mealId"`
	PhotoAssetID  *uuid.UUID `json:"photoAssetId,omitempty"`
	ImageFilename string     `json:"imageFilename"`
	CapturedAt    time.Time  `json:"capturedAt"`
	LoggedAt      time.Time  `json:"loggedAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// EntryPhotoAsset tracks the local and remote sync state of an entry's
// photo files. Its ID equals the owning entry's ID (1:1).
type EntryPhotoAsset struct {
	ID                uuid.UUID  `json:"id"`
	EntryID           uuid.UUID  `json:"entryId"`
	FullAssetRef      *string    `json:"fullAssetRef,omitempty"`
	ThumbAssetRef     *string    `json:"thumbAssetRef,omitempty"`
	FullImageFilename *string    `json:"fullImageFilename,omitempty"`
	ThumbnailFilename *string    `json:"thumbnailFilename,omitempty"`
	State             SyncState  `json:"state"`
	LastError         *string    `json:"lastError,omitempty"`
	RetryCount        int        `json:"retryCount"`
	NextRetryAt       *time.Time `json:"nextRetryAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
