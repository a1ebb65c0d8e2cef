package types

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
	MaxBulkUpdates   = 500
)

// Page selects a window of an ordered result set.
type Page struct {
	Limit  int `validate:"gte=1,lte=500"`
	Offset int `validate:"gte=0"`
}

// Filters narrow a search before ranking. Zero values mean "no filter".
type Filters struct {
	Contractor string
	Status     string `validate:"omitempty,oneof=BUILDING COMPLETE RECLAIMING DEPLETED"`
	DateStart  string `validate:"omitempty,datetime=2006-01-02"`
	DateEnd    string `validate:"omitempty,datetime=2006-01-02"`
}

// SearchParams is a ranked search request.
type SearchParams struct {
	Query   string
	Filters Filters
	Page    Page
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// NewPagination derives HasMore from the window and the returned row count.
func NewPagination(total int, p Page, returned int) Pagination {
	return Pagination{
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+returned < total,
	}
}

// RecordPage is one window of records plus its pagination info.
type RecordPage struct {
	Records    []Record
	Pagination Pagination
}

type UpdateRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value" validate:"required"`
}

type BulkUpdateItem struct {
	ID    int64  `json:"id"`
	Field string `json:"field"`
	Value string `json:"value"`
}

// BulkUpdateRequest items are validated one by one so a bad item fails
// alone instead of rejecting the batch.
type BulkUpdateRequest struct {
	Updates []BulkUpdateItem `json:"updates" validate:"required,min=1,max=500"`
}

type BulkUpdateError struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type BulkUpdateResult struct {
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Errors     []BulkUpdateError `json:"errors"`
}

// Health is the payload of GET /health.
type Health struct {
	Status         string `json:"status"`
	Store          string `json:"store"`
	StoreConnected bool   `json:"storeConnected"`
	Time           string `json:"time"`
}
