package audit

import "time"

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	ActorID    int64
	UserID     int64
	ServiceKey string
	Action     string
	Page       int
	PageSize   int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}
