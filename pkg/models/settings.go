package models

// IdentityPolicy controls when the resolver may create identities and accounts.
type IdentityPolicy struct {
	AutoCreateGuestIdentities bool `json:"auto_create_guest_identities"`
	AutoRegisterGuestAccounts bool `json:"auto_register_guest_accounts"`
}

// ClassificationSettings configures group labels, aliases and tag filtering.
type ClassificationSettings struct {
	GroupLabels            map[CustomerGroup]string   `json:"group_labels"`
	GroupAliases           map[CustomerGroup][]string `json:"group_aliases"`
	VIPLabel               string                     `json:"vip_label"`
	ForbiddenTagSignatures []string                   `json:"forbidden_tag_signatures"`
}

// DefaultClassificationSettings returns the labels used when nothing is configured.
func DefaultClassificationSettings() ClassificationSettings {
	return ClassificationSettings{
		GroupLabels: map[CustomerGroup]string{
			CustomerGroupRegistered: "Registered",
			CustomerGroupGuest:      "Guest",
			CustomerGroupCompany:    "Company",
		},
		GroupAliases: map[CustomerGroup][]string{},
		VIPLabel:     "VIP",
	}
}

// WithDefaults fills empty labels from DefaultClassificationSettings.
func (s ClassificationSettings) WithDefaults() ClassificationSettings {
	defaults := DefaultClassificationSettings()
	labels := make(map[CustomerGroup]string, len(defaults.GroupLabels))
	for group, label := range defaults.GroupLabels {
		labels[group] = label
	}
	for group, label := range s.GroupLabels {
		if group.Valid() && label != "" {
			labels[group] = label
		}
	}
	s.GroupLabels = labels
	if s.GroupAliases == nil {
		s.GroupAliases = map[CustomerGroup][]string{}
	}
	if s.VIPLabel == "" {
		s.VIPLabel = defaults.VIPLabel
	}
	return s
}
