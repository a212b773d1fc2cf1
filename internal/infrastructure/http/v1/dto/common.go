// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// --- Pagination ---

// ListRequest holds list query parameters. Filters is the wire tuple form,
// e.g. [["status","=","Open"],["qty",">",3]].
type ListRequest struct {
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset  int    `form:"offset" binding:"omitempty,min=0"`
	OrderBy string `form:"order_by"`
	Filters string `form:"filters"`
}

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}
