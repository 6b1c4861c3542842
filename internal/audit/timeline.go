package audit

import "time"

// TimelineFilters menampung filter dasar untuk audit timeline. To is exclusive.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineQuery is the repository-level form of TimelineFilters.
type TimelineQuery struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
	Offset int
	Limit  int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"hasNext"`
	PageSize int  `json:"pageSize"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

func (q TimelineQuery) matches(e Entry) bool {
	if !q.From.IsZero() && e.At.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.At.Before(q.To) {
		return false
	}
	if q.Actor != "" && e.ActorLabel() != q.Actor {
		return false
	}
	if q.Entity != "" && string(e.Entity) != q.Entity {
		return false
	}
	if q.Action != "" && string(e.Action) != q.Action {
		return false
	}
	return true
}
