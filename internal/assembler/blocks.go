package assembler

import (
	"errors"

	"estimator/internal/catalog"
	"estimator/internal/storage"
)

var (
	ErrMissingResourceBlock  = errors.New("at least one MATERIALS or WORK_TYPES block is required")
	ErrDuplicateCodeConflict = catalog.ErrDuplicateCodeConflict
	ErrUnknownResource       = errors.New("unknown resource")
	ErrInvalidBlock          = errors.New("invalid block")
	ErrInvalidMetadata       = errors.New("invalid template metadata")
)

type BlockType string

const (
	BlockOptions   BlockType = "OPTIONS"
	BlockMaterials BlockType = "MATERIALS"
	BlockWorkTypes BlockType = "WORK_TYPES"
	BlockFormulas  BlockType = "FORMULAS"
)

// Block is one reusable building unit. Ref identifies the block in the
// library it came from and is used to spot duplicates.
type Block struct {
	Ref     string              `json:"ref"`
	Type    BlockType           `json:"type" validate:"required,oneof=OPTIONS MATERIALS WORK_TYPES FORMULAS"`
	Name    string              `json:"name"`
	Options []storage.Parameter `json:"options,omitempty" validate:"dive"`
	Rules   []ResourceRule      `json:"rules,omitempty" validate:"dive"`
	// Formulas are ad hoc formulas, executed in the given order.
	Formulas []storage.Formula `json:"formulas,omitempty"`
}

// ResourceRule declares the consumption of one material or work type.
type ResourceRule struct {
	ResourceCode string `json:"resource_code" validate:"required"`
	// FormulaCode overrides the base of the generated formula codes.
	FormulaCode string `json:"formula_code,omitempty"`
	// Quantity is consumed per produced unit.
	Quantity       string                 `json:"quantity" validate:"required"`
	Unit           string                 `json:"unit"`
	WastePercent   float64                `json:"waste_percent" validate:"gte=0,lte=1000"`
	Setup          string                 `json:"setup,omitempty"`
	RoundingMethod storage.RoundingMethod `json:"rounding_method,omitempty"`
	Precision      int                    `json:"precision"`
	Condition      string                 `json:"condition,omitempty"`
	Optional       bool                   `json:"optional"`
	// Resource defines the resource when it is not in the catalog yet.
	Resource *ResourceDef `json:"resource,omitempty"`
}

type ResourceDef struct {
	Name     string  `json:"name" validate:"required"`
	BaseUnit string  `json:"base_unit" validate:"required"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
}

// Metadata describes the template. A MarginPercent left out inherits the
// configured default; an explicit 0 means no margin.
type Metadata struct {
	Name              string   `json:"name" validate:"required"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	Currency          string   `json:"currency"`
	BasePrice         float64  `json:"base_price" validate:"gte=0"`
	MarginPercent     *float64 `json:"margin_percent,omitempty" validate:"omitempty,gte=0"`
	RoundQuantities   bool     `json:"round_quantities"`
	QuantityPrecision int      `json:"quantity_precision" validate:"gte=0,lte=12"`
}

type Request struct {
	Metadata
	Blocks []Block `json:"blocks" validate:"dive"`
}

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type Preview struct {
	EstimatedParameters int `json:"estimated_parameters"`
	EstimatedFormulas   int `json:"estimated_formulas"`
	EstimatedBomItems   int `json:"estimated_bom_items"`
}

type Result struct {
	TemplateID   int64             `json:"template_id"`
	TemplateCode string            `json:"template_code"`
	Validation   Validation        `json:"validation"`
	Preview      Preview           `json:"preview"`
	Template     *storage.Template `json:"template,omitempty"`
}
