package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/mute-meter-api/internal/models"
)

func policyFixture() []models.MeterRecord {
	return []models.MeterRecord{
		{ReferenceNo: "1", Circle: "Sukkur", Division: "Rohri", SubDivision: "Rohri-1", Feeder: "F1"},
		{ReferenceNo: "2", Circle: "Sukkur", Division: "Rohri", SubDivision: "Rohri-2", Feeder: "F2"},
		{ReferenceNo: "3", Circle: "Sukkur", Division: "Khairpur", SubDivision: "Kp-1", Feeder: "F3"},
		{ReferenceNo: "4", Circle: "Larkana", Division: "Dadu", SubDivision: "Dadu-1", Feeder: "F4"},
	}
}

func refs(records []models.MeterRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ReferenceNo)
	}
	return out
}

func TestFilterByScopeConjunctive(t *testing.T) {
	circle, division := "Sukkur", "Rohri"
	visible := FilterByScope(policyFixture(), models.AccessScope{Circle: &circle, Division: &division}, false)
	assert.Equal(t, []string{"1", "2"}, refs(visible))

	feeder := "F3"
	visible = FilterByScope(policyFixture(), models.AccessScope{Circle: &circle, Division: &division, Feeder: &feeder}, false)
	assert.Empty(t, visible)
}

func TestFilterByScopeIgnoresBlankAndAll(t *testing.T) {
	all, blank, circle := "ALL", "  ", "Larkana"
	visible := FilterByScope(policyFixture(), models.AccessScope{Circle: &circle, Division: &all, Feeder: &blank}, false)
	assert.Equal(t, []string{"4"}, refs(visible))

	visible = FilterByScope(policyFixture(), models.AccessScope{}, false)
	assert.Len(t, visible, 4)
}

func TestFilterByScopeAdminBypass(t *testing.T) {
	circle := "Nowhere"
	records := policyFixture()
	visible := FilterByScope(records, models.AccessScope{Circle: &circle}, true)
	assert.Equal(t, refs(records), refs(visible))
}

func TestFilterByScopeIsSubsetAndPreservesOrder(t *testing.T) {
	circle := "Sukkur"
	records := policyFixture()
	visible := FilterByScope(records, models.AccessScope{Circle: &circle}, false)
	assert.Equal(t, []string{"1", "2", "3"}, refs(visible))
	for _, r := range visible {
		assert.Contains(t, refs(records), r.ReferenceNo)
	}
}

func TestVisibleRecordsCombinesScopeAndSelection(t *testing.T) {
	circle := "Sukkur"
	actor := userActor(models.AccessScope{Circle: &circle})

	visible := VisibleRecords(policyFixture(), actor, models.MeterFilter{Division: "Khairpur"})
	assert.Equal(t, []string{"3"}, refs(visible))

	// a selection cannot widen the access scope
	visible = VisibleRecords(policyFixture(), actor, models.MeterFilter{Circle: "Larkana"})
	assert.Empty(t, visible)

	visible = VisibleRecords(policyFixture(), adminActor(), models.MeterFilter{Circle: "Larkana"})
	assert.Equal(t, []string{"4"}, refs(visible))
}

func TestActorCanSee(t *testing.T) {
	division := "Dadu"
	actor := userActor(models.AccessScope{Division: &division})
	records := policyFixture()

	assert.False(t, actor.CanSee(records[0]))
	assert.True(t, actor.CanSee(records[3]))
	assert.True(t, adminActor().CanSee(records[0]))
}

func TestActorFromSession(t *testing.T) {
	circle := "Sukkur"
	state := &models.SessionState{UserID: "u-1", UserEmail: "a@sepco.com.pk", UserRole: models.RoleUser, AccessScope: &models.AccessScope{Circle: &circle}}

	actor := ActorFromSession(state, "10.0.0.1", "curl")
	assert.Equal(t, "u-1", actor.UserID)
	assert.Equal(t, "10.0.0.1", actor.IP)
	assert.Equal(t, "Sukkur", *actor.Scope.Circle)
}

func TestFilterByScopeCommutesAndIntersects(t *testing.T) {
	circle, feeder := "Sukkur", "F2"
	records := policyFixture()
	byCircle := models.AccessScope{Circle: &circle}
	byFeeder := models.AccessScope{Feeder: &feeder}

	combined := FilterByScope(records, models.AccessScope{Circle: &circle, Feeder: &feeder}, false)
	circleThenFeeder := FilterByScope(FilterByScope(records, byCircle, false), byFeeder, false)
	feederThenCircle := FilterByScope(FilterByScope(records, byFeeder, false), byCircle, false)

	assert.Equal(t, []string{"2"}, refs(combined))
	assert.Equal(t, refs(combined), refs(circleThenFeeder))
	assert.Equal(t, refs(combined), refs(feederThenCircle))

	inFeeder := map[string]bool{}
	for _, r := range FilterByScope(records, byFeeder, false) {
		inFeeder[r.ReferenceNo] = true
	}
	var intersection []string
	for _, r := range FilterByScope(records, byCircle, false) {
		if inFeeder[r.ReferenceNo] {
			intersection = append(intersection, r.ReferenceNo)
		}
	}
	assert.Equal(t, intersection, refs(combined))
}
