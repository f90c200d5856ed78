// Package models defines owners, records and the envelope that is the unit
// of durability and sync.
package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

// RecordType classifies a record kind. Each type has its own envelope.
type RecordType string

const (
	RecordTypeMeal       RecordType = "meal"
	RecordTypeMedication RecordType = "medication"
	RecordTypeCheckup    RecordType = "checkup"
	RecordTypePoop       RecordType = "poop"
	RecordTypePeriod     RecordType = "period"
)

// RecordTypes lists every record type in a stable order.
func RecordTypes() []RecordType {
	return []RecordType{RecordTypeMeal, RecordTypeMedication, RecordTypeCheckup, RecordTypePoop, RecordTypePeriod}
}

func ParseRecordType(s string) (RecordType, error) {
	for _, t := range RecordTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrInvalidRecordType, s)
}

// Attachment references a binary stored next to the owner's envelopes.
type Attachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail,omitempty"`
}

type StoolConsistency string

const (
	StoolHard   StoolConsistency = "hard"
	StoolNormal StoolConsistency = "normal"
	StoolSoft   StoolConsistency = "soft"
	StoolWatery StoolConsistency = "watery"
)

type StoolColor string

const (
	StoolBrown  StoolColor = "brown"
	StoolYellow StoolColor = "yellow"
	StoolGreen  StoolColor = "green"
	StoolBlack  StoolColor = "black"
	StoolRed    StoolColor = "red"
)

type StoolOdor string

const (
	OdorNormal StoolOdor = "normal"
	OdorStrong StoolOdor = "strong"
	OdorFoul   StoolOdor = "foul"
)

// StoolDetails are the poop-specific fields.
type StoolDetails struct {
	Consistency StoolConsistency `json:"consistency"`
	Color       StoolColor       `json:"color"`
	Odor        StoolOdor        `json:"odor"`
}

// MedicationDetails are the medication-specific fields.
type MedicationDetails struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Taken     bool   `json:"taken"`
}

type PeriodFlow string

const (
	FlowNone   PeriodFlow = "none"
	FlowLight  PeriodFlow = "light"
	FlowMedium PeriodFlow = "medium"
	FlowHeavy  PeriodFlow = "heavy"
)

// PeriodDetails are the period-specific fields.
type PeriodDetails struct {
	Flow     PeriodFlow `json:"flow"`
	Symptoms []string   `json:"symptoms,omitempty"`
}

// MealDetails are the meal-specific fields.
type MealDetails struct {
	MealType string `json:"mealType"`
	Calories int    `json:"calories,omitempty"`
}

// CheckupDetails are the checkup-specific fields.
type CheckupDetails struct {
	Doctor   string `json:"doctor,omitempty"`
	Location string `json:"location,omitempty"`
	Result   string `json:"result,omitempty"`
}

// Record is one entry of any type. Exactly the details pointer matching
// Type is expected to be set; the others stay nil.
type Record struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"userId"`
	Date        string             `json:"date"`
	DateTime    *time.Time         `json:"datetime,omitempty"`
	Type        RecordType         `json:"type"`
	Content     string             `json:"content"`
	Tags        []string           `json:"tags"`
	Attachments []Attachment       `json:"attachments"`
	Stool       *StoolDetails      `json:"stool,omitempty"`
	Medication  *MedicationDetails `json:"medication,omitempty"`
	Period      *PeriodDetails     `json:"period,omitempty"`
	Meal        *MealDetails       `json:"meal,omitempty"`
	Checkup     *CheckupDetails    `json:"checkup,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Normalize replaces nil slices with empty ones so equal records always
// serialize identically.
func (r *Record) Normalize() {
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.Attachments == nil {
		r.Attachments = []Attachment{}
	}
}
