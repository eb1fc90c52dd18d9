package grouping

import (
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
)

// BadgeKind classifies a displayed tag.
type BadgeKind string

const (
	BadgeKindStandard  BadgeKind = "standard"
	BadgeKindAutomatic BadgeKind = "automatic"
	BadgeKindCustom    BadgeKind = "custom"
)

// Badge is a tag annotated for display.
type Badge struct {
	Label  string    `json:"label"`
	Kind   BadgeKind `json:"kind"`
	Key    string    `json:"key,omitempty"`
	Color  string    `json:"color,omitempty"`
	RuleID string    `json:"ruleId,omitempty"`
}

// BuildTagList produces the ordered display tags: group label, VIP label,
// auto-tag labels, then custom tags. Labels are de-duplicated
// case-insensitively and forbidden signatures never appear.
func (c *Classifier) BuildTagList(group models.CustomerGroup, isVIP bool, autoTags []models.AutoTag, customTags []string) []string {
	settings := c.settings.Load()
	tags := make([]string, 0, 2+len(autoTags)+len(customTags))
	seen := map[string]struct{}{}

	add := func(label string) {
		label = strings.TrimSpace(label)
		if label == "" || settings.isForbidden(label) {
			return
		}
		key := normalizers.Fold(label)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		tags = append(tags, label)
	}

	add(settings.GroupLabels[models.ParseCustomerGroup(string(group))])
	if isVIP {
		add(settings.VIPLabel)
	}

	autoLabels := map[string]struct{}{}
	for _, tag := range autoTags {
		autoLabels[normalizers.Fold(tag.Label)] = struct{}{}
		add(tag.Label)
	}

	for _, tag := range customTags {
		key := normalizers.Fold(tag)
		if settings.isStandard(tag) {
			continue
		}
		if _, auto := autoLabels[key]; auto {
			continue
		}
		add(tag)
	}
	return tags
}

// CustomTags returns the free-form tags of a customer: those that are neither
// standard labels nor labels of its stored auto-tags.
func (c *Classifier) CustomTags(customer models.Customer) []string {
	settings := c.settings.Load()
	autoLabels := autoLabelSet(customer.AutoTags)

	return ectolinq.Filter(customer.Tags, func(tag string) bool {
		if strings.TrimSpace(tag) == "" || settings.isStandard(tag) {
			return false
		}
		_, auto := autoLabels[normalizers.Fold(tag)]
		return !auto
	})
}

// Badges annotates each tag of a customer. A customer without tags gets a
// single standard badge for its group.
func (c *Classifier) Badges(customer models.Customer) []Badge {
	settings := c.settings.Load()
	group := models.ParseCustomerGroup(string(customer.CustomerGroup))

	if len(customer.Tags) == 0 {
		return []Badge{{Label: settings.GroupLabels[group], Kind: BadgeKindStandard, Key: string(group)}}
	}

	autoByLabel := make(map[string]models.AutoTag, len(customer.AutoTags))
	for _, tag := range customer.AutoTags {
		autoByLabel[normalizers.Fold(tag.Label)] = tag
	}
	standardKeys := map[string]string{normalizers.Fold(settings.VIPLabel): "vip"}
	for _, g := range models.CustomerGroups {
		standardKeys[normalizers.Fold(settings.GroupLabels[g])] = string(g)
	}

	badges := make([]Badge, 0, len(customer.Tags))
	for _, tag := range customer.Tags {
		if settings.isForbidden(tag) {
			continue
		}
		key := normalizers.Fold(tag)
		if standardKey, ok := standardKeys[key]; ok {
			badges = append(badges, Badge{Label: tag, Kind: BadgeKindStandard, Key: standardKey})
			continue
		}
		if auto, ok := autoByLabel[key]; ok {
			badges = append(badges, Badge{Label: tag, Kind: BadgeKindAutomatic, Key: auto.Key, Color: auto.Color, RuleID: auto.RuleID})
			continue
		}
		badges = append(badges, Badge{Label: tag, Kind: BadgeKindCustom})
	}
	return badges
}

func autoLabelSet(tags []models.AutoTag) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, label := range ectolinq.Map(tags, func(tag models.AutoTag) string { return normalizers.Fold(tag.Label) }) {
		set[label] = struct{}{}
	}
	return set
}
