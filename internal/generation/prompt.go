package generation

import (
	"strings"

	"orbitstudio/internal/domain"
)

// BasePrompt is the instruction every orbit animation starts from.
const BasePrompt = "A slow, 360-degree orbit shot of this object"

var fieldSeparators = strings.NewReplacer("_", " ", "-", " ")

// BuildPrompt appends ", <value> <field name>" for every descriptive field
// with a value, in field order.
func BuildPrompt(f domain.FormData) string {
	var b strings.Builder
	b.WriteString(BasePrompt)
	for _, field := range Fields {
		if !field.Descriptive {
			continue
		}
		v := value(f, field.Name)
		if v == "" {
			continue
		}
		b.WriteString(", ")
		b.WriteString(v)
		b.WriteString(" ")
		b.WriteString(fieldSeparators.Replace(field.Name))
	}
	return b.String()
}
