package models

// SyncStats aggregates the outcome of a batch sync.
type SyncStats struct {
	OrdersAttached         int `json:"orders_attached"`
	CustomersCreated       int `json:"customers_created"`
	CustomersUpdated       int `json:"customers_updated"`
	AccountsCreated        int `json:"accounts_created"`
	OrdersSkippedNoContact int `json:"orders_skipped_no_contact"`
	// OrdersUnresolved counts orders whose identity could not be created under the current policy.
	OrdersUnresolved int `json:"orders_unresolved"`
	GroupsFailed     int `json:"groups_failed"`
}

func (s *SyncStats) Add(other SyncStats) {
	s.OrdersAttached += other.OrdersAttached
	s.CustomersCreated += other.CustomersCreated
	s.CustomersUpdated += other.CustomersUpdated
	s.AccountsCreated += other.AccountsCreated
	s.OrdersSkippedNoContact += other.OrdersSkippedNoContact
	s.OrdersUnresolved += other.OrdersUnresolved
	s.GroupsFailed += other.GroupsFailed
}

// RecomputeStats summarises a full-population recompute.
type RecomputeStats struct {
	Scanned int  `json:"scanned"`
	Updated int  `json:"updated"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped"`
}
