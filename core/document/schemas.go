package document

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/trezcool/edulens/core"
)

const textField = `{"type": "string", "minLength": 1, "maxLength": 5000}`

// inputSchemas holds the JSON schema of the generation inputs per document kind.
var inputSchemas = map[string]string{
	KindSOP: `{
		"type": "object",
		"required": ["university", "program", "background", "goals"],
		"properties": {
			"university": ` + textField + `,
			"program": ` + textField + `,
			"background": ` + textField + `,
			"goals": ` + textField + `,
			"experience": ` + textField + `,
			"word_limit": {"type": "integer", "minimum": 100, "maximum": 3000}
		}
	}`,
	KindLOR: `{
		"type": "object",
		"required": ["recommender", "relationship", "strengths"],
		"properties": {
			"recommender": ` + textField + `,
			"relationship": ` + textField + `,
			"strengths": {"type": "array", "minItems": 1, "items": ` + textField + `},
			"program": ` + textField + `
		}
	}`,
	KindEssay: `{
		"type": "object",
		"required": ["prompt"],
		"properties": {
			"prompt": ` + textField + `,
			"word_limit": {"type": "integer", "minimum": 100, "maximum": 3000}
		}
	}`,
	KindCV:     resumeInputSchema,
	KindResume: resumeInputSchema,
}

const resumeInputSchema = `{
	"type": "object",
	"anyOf": [{"required": ["resume_id"]}, {"required": ["sections"]}],
	"properties": {
		"resume_id": {"type": "string", "format": "uuid"},
		"sections": {"type": "object", "minProperties": 1},
		"target_role": ` + textField + `
	}
}`

var compiledSchemas = make(map[string]*gojsonschema.Schema, len(inputSchemas))

func init() {
	for kind, raw := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(errors.Wrap(err, "compiling "+kind+" inputs schema"))
		}
		compiledSchemas[kind] = schema
	}
}

// validateInputs checks generation inputs against the schema of `kind`.
func validateInputs(kind string, inputs map[string]interface{}) error {
	schema, ok := compiledSchemas[kind]
	if !ok {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(inputs))
	if err != nil {
		return errors.Wrap(err, "validating inputs")
	}
	if result.Valid() {
		return nil
	}

	fields := make(map[string]string)
	for _, re := range result.Errors() {
		field := re.Field()
		if prop, ok := re.Details()["property"].(string); ok && re.Type() == "required" {
			field = prop
		}
		if field == gojsonschema.STRING_CONTEXT_ROOT {
			field = ""
		}
		key := "inputs"
		if field != "" {
			key += "." + strings.TrimPrefix(field, gojsonschema.STRING_CONTEXT_ROOT+".")
		}
		if _, seen := fields[key]; !seen {
			fields[key] = re.Description()
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	flds := make([]core.FieldError, 0, len(keys))
	for _, k := range keys {
		flds = append(flds, core.FieldError{Field: k, Error: fields[k]})
	}
	return core.NewValidationError(nil, flds...)
}
