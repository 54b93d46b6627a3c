package http

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// invoiceSchema describes the expected structural shape of a Flux invoice.
// The chain name is deliberately an unconstrained string: unknown chains
// must pass through, so the schema only pins down structure, not values.
const invoiceSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "invoiceId": {"type": "string"},
    "amount": {"type": ["number", "string"]},
    "currency": {"type": "string"},
    "decimals": {"type": "integer"},
    "payTo": {"type": "string"},
    "chain": {"type": "string"},
    "expiresAt": {"type": "string"},
    "partner": {"type": "string"},
    "splitMode": {"type": "string", "enum": ["inclusive", "additional"]},
    "splits": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "to": {"type": "string"},
          "amount": {"type": ["number", "string"]},
          "role": {"type": "string"},
          "currency": {"type": "string"}
        },
        "required": ["to", "amount"]
      }
    }
  },
  "required": ["amount", "payTo", "chain"]
}`

var compiledInvoiceSchema = gojsonschema.NewStringLoader(invoiceSchema)

// ValidateInvoice checks a raw invoice payload against the protocol's
// invoice schema. It is a diagnostic helper for integrators debugging
// server responses; ParseInvoice itself stays tolerant and does not
// reject payloads that fail this schema.
func ValidateInvoice(data []byte) error {
	result, err := gojsonschema.Validate(compiledInvoiceSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("invoice validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("invalid invoice: %s", strings.Join(problems, "; "))
}
