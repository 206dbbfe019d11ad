package storage

type ParameterType string

const (
	ParamNumber  ParameterType = "NUMBER"
	ParamText    ParameterType = "TEXT"
	ParamBoolean ParameterType = "BOOLEAN"
	ParamSelect  ParameterType = "SELECT"
)

func (t ParameterType) Valid() bool {
	switch t {
	case ParamNumber, ParamText, ParamBoolean, ParamSelect:
		return true
	}
	return false
}

type ValidationRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

type Parameter struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Type          ParameterType   `json:"type"`
	Unit          string          `json:"unit,omitempty"`
	MinValue      *float64        `json:"min_value,omitempty"`
	MaxValue      *float64        `json:"max_value,omitempty"`
	SelectOptions []string        `json:"select_options,omitempty"`
	DefaultValue  Value           `json:"default_value"`
	IsRequired    bool            `json:"is_required"`
	Validation    *ValidationRule `json:"validation_rule,omitempty"`
	Description   string          `json:"description,omitempty"`
}

// TemplateParameter binds a shared Parameter to a Template. GroupName is display only.
type TemplateParameter struct {
	Parameter Parameter `json:"parameter"`
	GroupName string    `json:"group_name"`
	SortOrder int       `json:"sort_order"`
}
