package storage

type ResourceType string

const (
	ResourceMaterial ResourceType = "MATERIAL"
	ResourceLabor    ResourceType = "LABOR"
)

type Resource struct {
	ID       int64        `json:"id"`
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	Type     ResourceType `json:"type"`
	BaseUnit string       `json:"base_unit"`
	// UnitCost is the price per BaseUnit (hourly rate for labor).
	UnitCost float64 `json:"unit_cost"`
	IsActive bool    `json:"is_active"`
}

// ResourceKey identifies a resource: one code may exist once per type.
type ResourceKey struct {
	Code string
	Type ResourceType
}

func (r Resource) Key() ResourceKey { return ResourceKey{Code: r.Code, Type: r.Type} }
