package registry

import "fmt"

// FieldType is the input type a configuration UI should render for a field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldPassword FieldType = "password"
	FieldBoolean  FieldType = "boolean"
)

// ConfigField declares one configuration field of a backend type. The
// schema is consumed by external configuration UIs; Sensitive marks fields
// the encryption-at-rest layer must encrypt before persisting.
type ConfigField struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Sensitive   bool      `json:"sensitive"`
	Description string    `json:"description,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// ValidateOptions checks an option map against a schema: required fields
// must be present and non-empty, and values must match the declared type.
// Unknown keys are tolerated so schemas can grow without breaking stored
// configurations.
func ValidateOptions(schema []ConfigField, options map[string]any) error {
	for _, field := range schema {
		value, present := options[field.Name]

		if !present || value == nil {
			if field.Required {
				return fmt.Errorf("missing required field %q", field.Name)
			}
			continue
		}

		switch field.Type {
		case FieldText, FieldPassword:
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("field %q must be a string", field.Name)
			}
			if field.Required && s == "" {
				return fmt.Errorf("missing required field %q", field.Name)
			}
		case FieldNumber:
			switch value.(type) {
			case int, int32, int64, float32, float64:
			default:
				return fmt.Errorf("field %q must be a number", field.Name)
			}
		case FieldBoolean:
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("field %q must be a boolean", field.Name)
			}
		}
	}

	return nil
}
