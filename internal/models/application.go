// internal/models/application.go
package models

import (
	"strings"
	"time"
)

// Category is the intake category of an application. Fixed at submission.
type Category string

const (
	CategoryUniversity         Category = "university"
	CategoryOpenFormation      Category = "open_formation"
	CategoryFabLabWorkshop     Category = "fablab_workshop"
	CategoryFabLabSubscription Category = "fablab_subscription"
)

// Categories lists every supported intake category.
var Categories = []Category{
	CategoryUniversity,
	CategoryOpenFormation,
	CategoryFabLabWorkshop,
	CategoryFabLabSubscription,
}

// CategoryPolicy holds the category-specific rules the engine enforces.
type CategoryPolicy struct {
	RequiresPayment    bool
	RequiresCredential bool
	RequiresDocuments  bool
}

var categoryPolicies = map[Category]CategoryPolicy{
	CategoryUniversity:         {RequiresDocuments: true},
	CategoryOpenFormation:      {RequiresPayment: true},
	CategoryFabLabWorkshop:     {RequiresPayment: true, RequiresCredential: true},
	CategoryFabLabSubscription: {RequiresPayment: true, RequiresCredential: true},
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryPolicies[c]
	return ok
}

// Policy returns the rules for c. Unknown categories get the zero policy.
func (c Category) Policy() CategoryPolicy {
	return categoryPolicies[c]
}

// Status is the lifecycle position of an application.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Counted reports whether a record in this status holds a seat on its offering.
func (s Status) Counted() bool {
	return s == StatusApproved || s == StatusCompleted
}

// Outcome is the decision requested for a pending application.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// PaymentState tracks payment proof for paid categories.
type PaymentState string

const (
	PaymentUnpaid    PaymentState = "unpaid"
	PaymentSubmitted PaymentState = "submitted"
	PaymentVerified  PaymentState = "verified"
)

// VerificationState is the review outcome of a single submitted document.
type VerificationState string

const (
	DocumentPending VerificationState = "pending"
	DocumentValid   VerificationState = "valid"
	DocumentInvalid VerificationState = "invalid"
)

// Applicant is the contact the engine notifies. Opaque otherwise.
type Applicant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Document struct {
	Name              string            `json:"name"`
	Kind              string            `json:"kind"`
	VerificationState VerificationState `json:"verificationState"`
}

// ApplicationRecord is the durable state of one application or subscription request.
type ApplicationRecord struct {
	ID               string          `json:"id"`
	Category         Category        `json:"category"`
	Applicant        Applicant       `json:"applicant"`
	OfferingRef      string          `json:"offeringRef"`
	Plan             Plan            `json:"plan,omitempty"`
	Status           Status          `json:"status"`
	Documents        []Document      `json:"documents,omitempty"`
	PaymentState     PaymentState    `json:"paymentState"`
	PaymentProof     string          `json:"paymentProof,omitempty"`
	DecisionNotes    string          `json:"decisionNotes,omitempty"`
	DecidedAt        *time.Time      `json:"decidedAt,omitempty"`
	DecidedBy        string          `json:"decidedBy,omitempty"`
	RevertedAt       *time.Time      `json:"revertedAt,omitempty"`
	RevertedBy       string          `json:"revertedBy,omitempty"`
	AccessCredential *Credential     `json:"accessCredential,omitempty"`
	PendingEffects   []PendingEffect `json:"pendingEffects,omitempty"`
	ParkedEffects    []PendingEffect `json:"parkedEffects,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy so stores and listeners never share mutable state with the engine.
func (r *ApplicationRecord) Clone() *ApplicationRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Documents != nil {
		out.Documents = append([]Document(nil), r.Documents...)
	}
	if r.PendingEffects != nil {
		out.PendingEffects = append([]PendingEffect(nil), r.PendingEffects...)
	}
	if r.ParkedEffects != nil {
		out.ParkedEffects = append([]PendingEffect(nil), r.ParkedEffects...)
	}
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		out.DecidedAt = &t
	}
	if r.RevertedAt != nil {
		t := *r.RevertedAt
		out.RevertedAt = &t
	}
	if r.AccessCredential != nil {
		c := *r.AccessCredential
		out.AccessCredential = &c
	}
	return &out
}

// HasPendingEffect reports whether a marker of kind (and, for notify, notification kind) is outstanding.
func (r *ApplicationRecord) HasPendingEffect(kind EffectKind, notification NotificationKind) bool {
	for _, e := range r.PendingEffects {
		if e.Kind == kind && e.Notification == notification {
			return true
		}
	}
	return false
}

// Document returns the named document, if present.
func (r *ApplicationRecord) Document(name string) (*Document, bool) {
	for i := range r.Documents {
		if strings.EqualFold(r.Documents[i].Name, name) {
			return &r.Documents[i], true
		}
	}
	return nil, false
}

// Cursor is a position in the (CreatedAt, ID) order Store.Query returns records in.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the position of r.
func CursorOf(r *ApplicationRecord) *Cursor {
	return &Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

// Before reports whether r sorts strictly after c.
func (c *Cursor) Before(r *ApplicationRecord) bool {
	if r.CreatedAt.Equal(c.CreatedAt) {
		return r.ID > c.ID
	}
	return r.CreatedAt.After(c.CreatedAt)
}

// Filter selects records in Store.Query. Zero fields match everything.
type Filter struct {
	Category           Category
	OfferingRef        string
	Statuses           []Status
	PendingEffectsOnly bool
	// After skips every record up to and including the cursor.
	After *Cursor
	Limit int
}

// Matches reports whether r satisfies f.
func (f Filter) Matches(r *ApplicationRecord) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.OfferingRef != "" && r.OfferingRef != f.OfferingRef {
		return false
	}
	if f.PendingEffectsOnly && len(r.PendingEffects) == 0 {
		return false
	}
	if f.After != nil && !f.After.Before(r) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}
