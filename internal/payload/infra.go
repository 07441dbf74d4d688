package payload

import (
	"encoding/json"

	"github.com/tinytelemetry/cwrelay/internal/model"
)

// InfraPayload is the raw-forward envelope sent to the infra sink. On the
// wire the batch travels as a JSON string under "entry", next to the
// invocation context.
type InfraPayload struct {
	Context model.InvocationContext
	Batch   *model.LogBatch
}

// NewInfraPayload wraps a batch and invocation context for the infra sink.
func NewInfraPayload(ctx model.InvocationContext, batch *model.LogBatch) InfraPayload {
	return InfraPayload{Context: ctx, Batch: batch}
}

func (p InfraPayload) MarshalJSON() ([]byte, error) {
	entry, err := json.Marshal(p.Batch)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Context model.InvocationContext `json:"context"`
		Entry   string                  `json:"entry"`
	}{p.Context, string(entry)})
}

// Lines implements Payload.
func (p InfraPayload) Lines() int { return len(p.Batch.Events) }

// Split implements Payload, halving the batch's events.
func (p InfraPayload) Split() (Payload, Payload) {
	half := len(p.Batch.Events) / 2
	return InfraPayload{p.Context, p.Batch.WithEvents(p.Batch.Events[:half])},
		InfraPayload{p.Context, p.Batch.WithEvents(p.Batch.Events[half:])}
}
