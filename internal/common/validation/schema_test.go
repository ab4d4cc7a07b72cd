package validation

import (
	"testing"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubmission(category models.Category) *models.Submission {
	sub := &models.Submission{
		Category:    category,
		Applicant:   models.Applicant{Name: "Amina Diallo", Email: "amina@example.org", Phone: "+221 77 000 0000"},
		OfferingRef: "offering-1",
	}
	switch category {
	case models.CategoryUniversity:
		sub.Documents = []models.Document{{Name: "transcript", Kind: "pdf"}}
	case models.CategoryFabLabSubscription:
		sub.Plan = "quarterly"
		sub.PaymentProof = "receipt-42"
	default:
		sub.PaymentProof = "receipt-42"
	}
	return sub
}

func TestSubmissionValidator_AcceptsValidSubmissions(t *testing.T) {
	v, err := NewSubmissionValidator()
	require.NoError(t, err)

	for _, category := range models.Categories {
		t.Run(string(category), func(t *testing.T) {
			assert.NoError(t, v.Validate(validSubmission(category)))
		})
	}
}

func TestSubmissionValidator_PlanNamesIgnoreCaseAndSpace(t *testing.T) {
	v, err := NewSubmissionValidator()
	require.NoError(t, err)

	for _, plan := range []string{"Monthly", " monthly ", "QUARTERLY", "yearly\t"} {
		t.Run(plan, func(t *testing.T) {
			sub := validSubmission(models.CategoryFabLabSubscription)
			sub.Plan = plan
			assert.NoError(t, v.Validate(sub))
			assert.NotEqual(t, models.PlanWorkshop, models.ParsePlan(plan))
		})
	}

	sub := validSubmission(models.CategoryFabLabSubscription)
	sub.Plan = " Weekly "
	assert.ErrorIs(t, v.Validate(sub), errors.ErrValidation)
}

func TestSubmissionValidator_RejectsMissingCategoryFields(t *testing.T) {
	v, err := NewSubmissionValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(s *models.Submission)
		base    models.Category
		message string
	}{
		{
			name:    "paid category without payment proof",
			base:    models.CategoryOpenFormation,
			mutate:  func(s *models.Submission) { s.PaymentProof = "" },
			message: "paymentProof",
		},
		{
			name:    "university without documents",
			base:    models.CategoryUniversity,
			mutate:  func(s *models.Submission) { s.Documents = nil },
			message: "documents",
		},
		{
			name:    "subscription with unknown plan",
			base:    models.CategoryFabLabSubscription,
			mutate:  func(s *models.Submission) { s.Plan = "weekly" },
			message: "plan",
		},
		{
			name:    "bad email",
			base:    models.CategoryFabLabWorkshop,
			mutate:  func(s *models.Submission) { s.Applicant.Email = "not-an-email" },
			message: "email",
		},
		{
			name:    "blank offering",
			base:    models.CategoryFabLabWorkshop,
			mutate:  func(s *models.Submission) { s.OfferingRef = "   " },
			message: "offeringRef",
		},
		{
			name:    "unknown category",
			base:    models.CategoryOpenFormation,
			mutate:  func(s *models.Submission) { s.Category = "bootcamp" },
			message: "category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission(tt.base)
			tt.mutate(sub)

			err := v.Validate(sub)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrValidation)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
