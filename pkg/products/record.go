package products

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/productledger/pkg/chain"
)

// ArchivedEventRecord is the off-chain copy of one mutation. Event is nil when
// the receipt carried no TokenStateChanged log.
type ArchivedEventRecord struct {
	TransactionHash string             `json:"transactionHash"`
	Operation       string             `json:"operation"`
	Event           *chain.LedgerEvent `json:"event"`
}

const recordSchemaURL = "https://productledger.schemas.local/archived-event-record.schema.json"

const recordSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["transactionHash", "event"],
  "properties": {
    "transactionHash": {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"},
    "operation": {"type": "string"},
    "event": {
      "oneOf": [
        {"type": "null"},
        {
          "type": "object",
          "required": ["tokenId", "action", "timestamp"],
          "properties": {
            "tokenId": {"type": "integer", "minimum": 0},
            "action": {"type": "string", "minLength": 1},
            "initiator": {"type": "string"},
            "timestamp": {"type": "string", "format": "date-time"},
            "additionalInfo": {"type": "string"}
          }
        }
      ]
    }
  }
}`

var recordSchema = compileRecordSchema()

func compileRecordSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(recordSchemaURL, strings.NewReader(recordSchemaJSON)); err != nil {
		panic(fmt.Sprintf("archived record schema load failed: %v", err))
	}
	return c.MustCompile(recordSchemaURL)
}

// ParseArchivedRecord validates raw against the record schema and decodes it.
func ParseArchivedRecord(raw []byte) (*ArchivedEventRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("archived record is not JSON: %w", err)
	}
	if err := recordSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("archived record schema validation failed: %w", err)
	}

	var rec ArchivedEventRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode archived record: %w", err)
	}
	return &rec, nil
}
