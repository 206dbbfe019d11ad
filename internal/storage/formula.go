package storage

type RoundingMethod string

const (
	RoundNone  RoundingMethod = "NONE"
	RoundRound RoundingMethod = "ROUND"
	RoundCeil  RoundingMethod = "CEIL"
	RoundFloor RoundingMethod = "FLOOR"
)

type Formula struct {
	ID              int64          `json:"id"`
	Code            string         `json:"code"`
	Name            string         `json:"name"`
	Expression      string         `json:"expression"`
	InputParameters []string       `json:"input_parameters,omitempty"`
	OutputUnit      string         `json:"output_unit,omitempty"`
	RoundingMethod  RoundingMethod `json:"rounding_method"`
	Precision       int            `json:"precision"`
	Priority        int            `json:"priority"`
	Conditions      string         `json:"conditions,omitempty"`
	IsActive        bool           `json:"is_active"`
}

type TemplateFormula struct {
	Formula        Formula `json:"formula"`
	ExecutionOrder int     `json:"execution_order"`
}
