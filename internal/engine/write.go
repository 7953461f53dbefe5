package engine

import (
	"fmt"
	"math"
	"slices"

	"commerce-backend/internal/metadata"
)

// prepareWrite checks a JSON body against the entity's writable fields and
// returns the column values to store. Unknown and read-only keys are
// rejected rather than ignored.
func prepareWrite(entity *metadata.Entity, body map[string]any, isCreate bool) (map[string]any, []ErrorDetail) {
	allowed := entity.UpdatableFields()
	if isCreate {
		allowed = entity.WritableFields()
	}
	byName := make(map[string]*metadata.Field, len(allowed))
	for i := range allowed {
		byName[allowed[i].Name] = &allowed[i]
	}

	var errs []ErrorDetail
	values := make(map[string]any, len(body))
	for key, raw := range body {
		f, ok := byName[key]
		if !ok {
			errs = append(errs, ErrorDetail{Field: key, Rule: "unknown", Message: fmt.Sprintf("%s cannot be written", key)})
			continue
		}
		v, err := coerceJSON(f, raw)
		if err != nil {
			errs = append(errs, ErrorDetail{Field: key, Rule: "type", Message: err.Error()})
			continue
		}
		if v != nil && len(f.Enum) > 0 && !slices.Contains(f.Enum, fmt.Sprintf("%v", v)) {
			errs = append(errs, ErrorDetail{Field: key, Rule: "enum", Message: fmt.Sprintf("%s must be one of %v", key, f.Enum)})
			continue
		}
		if v == nil && f.Required && !f.Nullable {
			errs = append(errs, ErrorDetail{Field: key, Rule: "required", Message: fmt.Sprintf("%s is required", key)})
			continue
		}
		values[key] = v
	}

	if isCreate {
		for _, f := range allowed {
			if _, ok := values[f.Name]; ok || !f.Required || f.Default != nil {
				continue
			}
			if _, rejected := body[f.Name]; rejected {
				continue
			}
			errs = append(errs, ErrorDetail{Field: f.Name, Rule: "required", Message: fmt.Sprintf("%s is required", f.Name)})
		}
	}

	return values, errs
}

func coerceJSON(f *metadata.Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.Type {
	case "int", "bigint":
		n, ok := raw.(float64)
		if !ok || n != math.Trunc(n) {
			return nil, fmt.Errorf("%s must be an integer", f.Name)
		}
		return int64(n), nil
	case "float", "decimal":
		n, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("%s must be a number", f.Name)
		}
		return n, nil
	case "boolean":
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%s must be a boolean", f.Name)
		}
		return b, nil
	default:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", f.Name)
		}
		return s, nil
	}
}
