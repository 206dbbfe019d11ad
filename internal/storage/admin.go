package storage

// OverheadRate is a fund allocation percentage for a template category.
// An empty Category applies to every template.
type OverheadRate struct {
	ID       int64   `json:"id"`
	Category string  `json:"category"`
	Fund     string  `json:"fund"`
	Percent  float64 `json:"percent"`
	IsActive bool    `json:"is_active"`
}
