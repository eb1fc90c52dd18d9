package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

func TestBuildTagList(t *testing.T) {
	c := NewStaticClassifier(testSettings())
	loyal := models.AutoTag{Key: "loyal", Label: "Věrný", Color: "#00f", RuleID: "r-1"}
	heureka := models.AutoTag{Key: "heureka", Label: "Heureka", RuleID: "r-2"}

	tests := []struct {
		name     string
		group    models.CustomerGroup
		isVIP    bool
		autoTags []models.AutoTag
		custom   []string
		want     []string
	}{
		{
			name:  "group only",
			group: models.CustomerGroupGuest,
			want:  []string{"Host"},
		},
		{
			name:     "standard order",
			group:    models.CustomerGroupRegistered,
			isVIP:    true,
			autoTags: []models.AutoTag{loyal},
			custom:   []string{"Newsletter"},
			want:     []string{"Registrovaný", "VIP", "Věrný", "Newsletter"},
		},
		{
			name:   "custom tags matching standard labels are dropped",
			group:  models.CustomerGroupCompany,
			custom: []string{"host", "vip", "REGISTROVANÝ", "Firma", "Reklamace"},
			want:   []string{"Firma", "Reklamace"},
		},
		{
			name:     "custom tags matching auto-tag labels are dropped",
			group:    models.CustomerGroupRegistered,
			autoTags: []models.AutoTag{loyal},
			custom:   []string{"věrný", "Newsletter", "newsletter"},
			want:     []string{"Registrovaný", "Věrný", "Newsletter"},
		},
		{
			name:     "forbidden signatures dropped at every step",
			group:    models.CustomerGroupRegistered,
			autoTags: []models.AutoTag{heureka, loyal},
			custom:   []string{" HEUREKA ", "Newsletter"},
			want:     []string{"Registrovaný", "Věrný", "Newsletter"},
		},
		{
			name:   "tags only containing a signature are kept",
			group:  models.CustomerGroupRegistered,
			custom: []string{"Heureka import"},
			want:   []string{"Registrovaný", "Heureka import"},
		},
		{
			name:   "blank custom tags skipped",
			group:  models.CustomerGroupGuest,
			custom: []string{"", "  "},
			want:   []string{"Host"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.BuildTagList(tt.group, tt.isVIP, tt.autoTags, tt.custom))
		})
	}
}

func TestBuildTagList_ForbiddenGroupLabel(t *testing.T) {
	settings := testSettings()
	settings.ForbiddenTagSignatures = []string{"host"}
	c := NewStaticClassifier(settings)

	assert.Equal(t, []string{"VIP", "Hostina"}, c.BuildTagList(models.CustomerGroupGuest, true, nil, []string{"host", "Hostina"}))
}

func TestCustomTags(t *testing.T) {
	c := NewStaticClassifier(testSettings())
	customer := models.Customer{
		CustomerGroup: models.CustomerGroupRegistered,
		Tags:          []string{"Registrovaný", "VIP", "Věrný", "Newsletter", "Host", "Reklamace"},
		AutoTags:      []models.AutoTag{{Key: "loyal", Label: "Věrný"}},
	}

	assert.Equal(t, []string{"Newsletter", "Reklamace"}, c.CustomTags(customer))
	assert.Empty(t, c.CustomTags(models.Customer{}))
}

func TestBadges(t *testing.T) {
	c := NewStaticClassifier(testSettings())

	t.Run("annotates each tag", func(t *testing.T) {
		customer := models.Customer{
			CustomerGroup: models.CustomerGroupRegistered,
			Tags:          []string{"Registrovaný", "VIP", "Věrný", "Newsletter"},
			AutoTags:      []models.AutoTag{{Key: "loyal", Label: "Věrný", Color: "#00f", RuleID: "r-1"}},
		}

		assert.Equal(t, []Badge{
			{Label: "Registrovaný", Kind: BadgeKindStandard, Key: "registered"},
			{Label: "VIP", Kind: BadgeKindStandard, Key: "vip"},
			{Label: "Věrný", Kind: BadgeKindAutomatic, Key: "loyal", Color: "#00f", RuleID: "r-1"},
			{Label: "Newsletter", Kind: BadgeKindCustom},
		}, c.Badges(customer))
	})

	t.Run("synthesizes group badge without tags", func(t *testing.T) {
		customer := models.Customer{CustomerGroup: models.CustomerGroupCompany}
		assert.Equal(t, []Badge{{Label: "Firma", Kind: BadgeKindStandard, Key: "company"}}, c.Badges(customer))
	})
}
