package validation

import (
	"strings"
	"testing"
)

func float64p(v float64) *float64 { return &v }

func invoiceSchema() *ObjectSchema {
	return &ObjectSchema{
		Properties: map[string]Property{
			"amount":   {Type: TypeNumber, Minimum: float64p(0)},
			"currency": {Type: TypeString, Enum: []string{"USD", "EUR"}},
			"items": {Type: TypeArray, Items: &Property{
				Type: TypeObject,
				Properties: map[string]Property{
					"sku": {Type: TypeString},
					"qty": {Type: TypeInteger, Minimum: float64p(1)},
				},
				Required: []string{"sku", "qty"},
			}},
			"paid": {Type: TypeBoolean},
		},
		Required: []string{"amount", "currency"},
	}
}

func findError(t *testing.T, errs []FieldError, path string) FieldError {
	t.Helper()
	for _, e := range errs {
		if e.Path == path {
			return e
		}
	}
	t.Fatalf("no error for path %s in %v", path, errs)
	return FieldError{}
}

func TestValidateConformingObject(t *testing.T) {
	raw := `{"amount": 12.5, "currency": "USD", "items": [{"sku": "A-1", "qty": 2}], "paid": false}`
	value, errs := invoiceSchema().Validate(raw)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	obj, ok := value.(map[string]any)
	if !ok || obj["currency"] != "USD" {
		t.Fatalf("parsed value wrong: %#v", value)
	}
}

func TestValidateWrongTypeNamesField(t *testing.T) {
	// "amount" as a string must fail with an error naming the field.
	raw := `{"amount": "12.50", "currency": "USD"}`
	_, errs := invoiceSchema().Validate(raw)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	fe := findError(t, errs, "$.amount")
	if fe.Expected != "number" || !strings.Contains(fe.Got, "12.50") {
		t.Fatalf("error not actionable: %+v", fe)
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	raw := `{"amount": -3, "currency": "GBP", "paid": "yes"}`
	_, errs := invoiceSchema().Validate(raw)
	if len(errs) != 3 {
		t.Fatalf("expected all 3 violations at once, got %v", errs)
	}
	findError(t, errs, "$.amount")   // below minimum
	findError(t, errs, "$.currency") // enum violation
	findError(t, errs, "$.paid")     // wrong type
}

func TestValidateRequiredMissing(t *testing.T) {
	_, errs := invoiceSchema().Validate(`{"amount": 5}`)
	fe := findError(t, errs, "$.currency")
	if fe.Got != "missing" {
		t.Fatalf("expected missing marker, got %+v", fe)
	}
}

func TestValidateNestedArrayItems(t *testing.T) {
	raw := `{"amount": 1, "currency": "EUR", "items": [{"sku": "A", "qty": 1}, {"sku": "B", "qty": 0.5}]}`
	_, errs := invoiceSchema().Validate(raw)
	fe := findError(t, errs, "$.items[1].qty")
	if fe.Expected != "integer" {
		t.Fatalf("expected integer violation, got %+v", fe)
	}
}

func TestValidateNotJSON(t *testing.T) {
	_, errs := invoiceSchema().Validate("the total is twelve dollars")
	if len(errs) != 1 || errs[0].Path != "$" {
		t.Fatalf("expected a single root error, got %v", errs)
	}
}

func TestValidateStripsFences(t *testing.T) {
	raw := "```json\n{\"amount\": 2, \"currency\": \"USD\"}\n```"
	_, errs := invoiceSchema().Validate(raw)
	if len(errs) != 0 {
		t.Fatalf("fenced payload rejected: %v", errs)
	}
}

func TestStripFences(t *testing.T) {
	if got := StripFences("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Fatalf("got %q", got)
	}
	if got := StripFences(`{"a":1}`); got != `{"a":1}` {
		t.Fatalf("unfenced input changed: %q", got)
	}
}

func TestParseSchema(t *testing.T) {
	data := []byte(`{
		"type": "object",
		"properties": {
			"summary": {"type": "string"},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		},
		"required": ["summary"]
	}`)
	schema, err := ParseSchema(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, errs := schema.Validate(`{"summary": "ok", "confidence": 0.9}`); len(errs) != 0 {
		t.Fatalf("valid payload rejected: %v", errs)
	}
	if _, errs := schema.Validate(`{"summary": "ok", "confidence": 1.5}`); len(errs) != 1 {
		t.Fatalf("maximum not enforced: %v", errs)
	}

	if _, err := ParseSchema([]byte(`{"type": "array"}`)); err == nil {
		t.Fatalf("non-object schema accepted")
	}
	if _, err := ParseSchema([]byte(`{`)); err == nil {
		t.Fatalf("malformed schema accepted")
	}
}
