package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCategoryPolicy(t *testing.T) {
	assert.True(t, CategoryUniversity.Valid())
	assert.False(t, Category("evening_school").Valid())

	assert.False(t, CategoryUniversity.Policy().RequiresPayment)
	assert.True(t, CategoryUniversity.Policy().RequiresDocuments)
	assert.True(t, CategoryOpenFormation.Policy().RequiresPayment)
	assert.False(t, CategoryOpenFormation.Policy().RequiresCredential)
	assert.True(t, CategoryFabLabWorkshop.Policy().RequiresCredential)
	assert.True(t, CategoryFabLabSubscription.Policy().RequiresCredential)
}

func TestParsePlan(t *testing.T) {
	assert.Equal(t, PlanMonthly, ParsePlan("Monthly"))
	assert.Equal(t, PlanQuarterly, ParsePlan(" quarterly "))
	assert.Equal(t, PlanYearly, ParsePlan("YEARLY"))
	assert.Equal(t, PlanWorkshop, ParsePlan("laser-cutting-intro"))
	assert.Equal(t, PlanWorkshop, ParsePlan(""))
}

func TestApplicationRecord_CloneIsDeep(t *testing.T) {
	decided := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := &ApplicationRecord{
		ID:               "app-1",
		Documents:        []Document{{Name: "id-card", VerificationState: DocumentPending}},
		PendingEffects:   []PendingEffect{{ID: "e1", Kind: EffectNotify, Notification: NotificationApproval}},
		DecidedAt:        &decided,
		AccessCredential: &Credential{Key: "AB12CD34"},
	}

	clone := rec.Clone()
	clone.Documents[0].VerificationState = DocumentValid
	clone.PendingEffects[0].Attempts = 3
	*clone.DecidedAt = decided.Add(time.Hour)
	clone.AccessCredential.Key = "ZZZZZZZZ"

	assert.Equal(t, DocumentPending, rec.Documents[0].VerificationState)
	assert.Equal(t, 0, rec.PendingEffects[0].Attempts)
	assert.Equal(t, decided, *rec.DecidedAt)
	assert.Equal(t, "AB12CD34", rec.AccessCredential.Key)
}

func TestFilter_Matches(t *testing.T) {
	rec := &ApplicationRecord{
		Category:    CategoryFabLabSubscription,
		OfferingRef: "fablab-quarterly",
		Status:      StatusApproved,
	}

	assert.True(t, Filter{}.Matches(rec))
	assert.True(t, Filter{OfferingRef: "fablab-quarterly", Statuses: []Status{StatusApproved, StatusCompleted}}.Matches(rec))
	assert.False(t, Filter{Statuses: []Status{StatusPending}}.Matches(rec))
	assert.False(t, Filter{Category: CategoryUniversity}.Matches(rec))
	assert.False(t, Filter{PendingEffectsOnly: true}.Matches(rec))

	rec.PendingEffects = []PendingEffect{{Kind: EffectCapacityIncrement}}
	assert.True(t, Filter{PendingEffectsOnly: true}.Matches(rec))
	assert.True(t, rec.HasPendingEffect(EffectCapacityIncrement, ""))
	assert.False(t, rec.HasPendingEffect(EffectNotify, NotificationApproval))
}

func TestCapacity_Full(t *testing.T) {
	limit := int64(2)
	assert.False(t, Capacity{Enrolled: 100}.Full())
	assert.False(t, Capacity{Enrolled: 1, Cap: &limit}.Full())
	assert.True(t, Capacity{Enrolled: 2, Cap: &limit}.Full())
}
