// internal/models/effects.go
package models

import "time"

// EffectKind names a side effect that must follow a committed transition.
type EffectKind string

const (
	EffectCapacityIncrement EffectKind = "capacity_increment"
	EffectCapacityDecrement EffectKind = "capacity_decrement"
	EffectCredentialIssue   EffectKind = "credential_issue"
	EffectCredentialRelease EffectKind = "credential_release"
	EffectNotify            EffectKind = "notify"
)

// PendingEffect is a durable marker saved together with the transition that requires it.
// It is removed once the effect has run.
type PendingEffect struct {
	ID           string           `json:"id"`
	Kind         EffectKind       `json:"kind"`
	Notification NotificationKind `json:"notification,omitempty"`
	Resend       bool             `json:"resend,omitempty"`
	Attempts     int              `json:"attempts"`
	LastError    string           `json:"lastError,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// NotificationKind is the user-facing message a transition requires.
type NotificationKind string

const (
	NotificationApproval   NotificationKind = "approval"
	NotificationRejection  NotificationKind = "rejection"
	NotificationCredential NotificationKind = "credential"
)

// Notification is what the engine hands to the dispatcher. ID doubles as the delivery idempotency key.
type Notification struct {
	ID            string           `json:"id"`
	Kind          NotificationKind `json:"kind"`
	ApplicationID string           `json:"applicationId"`
	Category      Category         `json:"category"`
	OfferingRef   string           `json:"offeringRef"`
	Recipient     Applicant        `json:"recipient"`
	Decision      Status           `json:"decision"`
	Notes         string           `json:"notes,omitempty"`
	Credential    *Credential      `json:"credential,omitempty"`
	Resend        bool             `json:"resend,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// TransitionEvent is emitted after a lifecycle change has been committed.
type TransitionEvent struct {
	Record *ApplicationRecord `json:"record"`
	From   Status             `json:"from,omitempty"`
	To     Status             `json:"to"`
	Action string             `json:"action"`
	Actor  string             `json:"actor,omitempty"`
	At     time.Time          `json:"at"`
}
