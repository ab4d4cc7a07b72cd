// internal/common/validation/schema.go
package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

const baseSchema = `{
  "type": "object",
  "required": ["category", "applicant", "offeringRef"],
  "properties": {
    "category": {"type": "string", "enum": ["university", "open_formation", "fablab_workshop", "fablab_subscription"]},
    "offeringRef": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "applicant": {
      "type": "object",
      "required": ["name", "email"],
      "properties": {
        "name": {"type": "string", "minLength": 1, "pattern": "\\S"},
        "email": {"type": "string", "format": "email"},
        "phone": {"type": "string", "pattern": "^\\+?[0-9 ()-]{6,20}$"}
      }
    },
    "documents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "kind"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "kind": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

// Category rules layered over baseSchema with allOf.
var categorySchemas = map[models.Category]string{
	models.CategoryUniversity: `{
  "required": ["documents"],
  "properties": {"documents": {"minItems": 1}}
}`,
	models.CategoryOpenFormation: `{
  "required": ["paymentProof"],
  "properties": {"paymentProof": {"type": "string", "minLength": 1}}
}`,
	models.CategoryFabLabWorkshop: `{
  "required": ["paymentProof"],
  "properties": {"paymentProof": {"type": "string", "minLength": 1}}
}`,
	models.CategoryFabLabSubscription: `{
  "required": ["paymentProof", "plan"],
  "properties": {
    "paymentProof": {"type": "string", "minLength": 1},
    "plan": {"type": "string", "enum": ["monthly", "quarterly", "yearly"]}
  }
}`,
}

// SubmissionValidator checks submissions against compiled per-category schemas.
type SubmissionValidator struct {
	base       *gojsonschema.Schema
	categories map[models.Category]*gojsonschema.Schema
}

func NewSubmissionValidator() (*SubmissionValidator, error) {
	base, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(baseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile base schema: %w", err)
	}

	v := &SubmissionValidator{
		base:       base,
		categories: make(map[models.Category]*gojsonschema.Schema, len(categorySchemas)),
	}
	for category, raw := range categorySchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", category, err)
		}
		v.categories[category] = schema
	}
	return v, nil
}

// Validate returns a VALIDATION_ERROR listing every violated field, or nil.
func (v *SubmissionValidator) Validate(sub *models.Submission) error {
	// round-trip through JSON so omitempty matches what a caller would have sent
	raw, err := json.Marshal(sub)
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("encode submission: %v", err))
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.NewValidationError(fmt.Sprintf("decode submission: %v", err))
	}
	// plans are matched the way the engine parses them
	if plan, ok := doc["plan"].(string); ok {
		doc["plan"] = models.NormalizePlanName(plan)
	}

	problems, err := collect(v.base, doc)
	if err != nil {
		return errors.NewValidationError(err.Error())
	}
	if schema, ok := v.categories[sub.Category]; ok {
		more, err := collect(schema, doc)
		if err != nil {
			return errors.NewValidationError(err.Error())
		}
		problems = append(problems, more...)
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return errors.NewValidationError(strings.Join(dedupe(problems), "; "))
}

func collect(schema *gojsonschema.Schema, doc map[string]interface{}) ([]string, error) {
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	out := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		out = append(out, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return out, nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
