// Package ingest accepts event batches from the capture layer.
//
// A batch is the unit of append: the events it carries are validated against
// the embedded wire schema, resequenced to keep session timestamps
// monotonic, and appended after any previously accepted events for the same
// session. The package also runs the spool watcher, the file-drop boundary
// between the external capture transport and this process.
package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"typewitness/internal/event"
)

//go:embed event-batch-v1.schema.json
var batchSchemaJSON []byte

const batchSchemaURL = "https://typewitness.dev/schema/event-batch-v1.schema.json"

// EventBatchInput is the ingestion contract with the capture layer. Relative
// order of Events is preserved on append.
type EventBatchInput struct {
	SessionID string `json:"sessionId"`

	// Optional session metadata, honored when the batch creates the
	// session.
	ProjectID      string `json:"projectId,omitempty"`
	ExternalUserID string `json:"externalUserId,omitempty"`
	IPAddress      string `json:"ipAddress,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`

	// Submitted signals the session's submission transition. Events in a
	// submitted batch are appended first, then the transition applies.
	Submitted bool `json:"submitted,omitempty"`

	Events []event.TrackerEvent `json:"events"`
}

var (
	batchSchema     *jsonschema.Schema
	batchSchemaOnce sync.Once
	batchSchemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	batchSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(batchSchemaURL, bytes.NewReader(batchSchemaJSON)); err != nil {
			batchSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		batchSchema, batchSchemaErr = compiler.Compile(batchSchemaURL)
	})
	return batchSchema, batchSchemaErr
}

// ParseBatch validates raw JSON against the event-batch schema and decodes
// it. Validation rejects structurally broken input (missing session id,
// events without type or timestamp); it deliberately does not check type
// tags against the closed enumeration, since unknown tags from newer capture
// layers must pass through.
func ParseBatch(data []byte) (*EventBatchInput, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("batch schema validation: %w", err)
	}

	var batch EventBatchInput
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &batch, nil
}
