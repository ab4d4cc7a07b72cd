// internal/models/submission.go
package models

// Submission is the caller-supplied payload for a new application.
type Submission struct {
	Category     Category   `json:"category"`
	Applicant    Applicant  `json:"applicant"`
	OfferingRef  string     `json:"offeringRef"`
	Plan         string     `json:"plan,omitempty"`
	Documents    []Document `json:"documents,omitempty"`
	PaymentProof string     `json:"paymentProof,omitempty"`
}
