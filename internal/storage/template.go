package storage

import "time"

type TemplateStatus string

const (
	StatusDraft    TemplateStatus = "DRAFT"
	StatusActive   TemplateStatus = "ACTIVE"
	StatusArchived TemplateStatus = "ARCHIVED"
)

func (s TemplateStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// Template is the aggregate root: parameters, formulas and one BomTemplate.
// A nil MarginPercent inherits the configured default.
type Template struct {
	ID            int64               `json:"id"`
	Code          string              `json:"code"`
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Category      string              `json:"category"`
	Status        TemplateStatus      `json:"status"`
	Version       int                 `json:"version"`
	BasePrice     float64             `json:"base_price"`
	MarginPercent *float64            `json:"margin_percent,omitempty"`
	Currency      string              `json:"currency"`
	Parameters    []TemplateParameter `json:"parameters"`
	Formulas      []TemplateFormula   `json:"formulas"`
	Bom           BomTemplate         `json:"bom"`
	CreatedAt     time.Time           `json:"created_at"`
}

type BomTemplate struct {
	ID              int64 `json:"id"`
	IncludeWaste    bool  `json:"include_waste"`
	IncludeSetup    bool  `json:"include_setup"`
	RoundQuantities bool  `json:"round_quantities"`
	// QuantityPrecision is the number of decimals RoundQuantities ceils to.
	QuantityPrecision int               `json:"quantity_precision"`
	Items             []BomTemplateItem `json:"items"`
}

type BomTemplateItem struct {
	ID               int64        `json:"id"`
	ResourceCode     string       `json:"resource_code"`
	ResourceType     ResourceType `json:"resource_type"`
	QuantityFormula  string       `json:"quantity_formula"`
	QuantityUnit     string       `json:"quantity_unit"`
	IncludeCondition string       `json:"include_condition,omitempty"`
	GroupName        string       `json:"group_name"`
	SortOrder        int          `json:"sort_order"`
	IsOptional       bool         `json:"is_optional"`
}

// TemplateSummary is a list row without the collections.
type TemplateSummary struct {
	ID        int64          `json:"id"`
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Category  string         `json:"category"`
	Status    TemplateStatus `json:"status"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
}

type TemplateStatusUpdate struct {
	Status  TemplateStatus `json:"status"`
	Version *int           `json:"version,omitempty"`
}
