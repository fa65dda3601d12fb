// Package sink serializes records and summaries for delivery to a client.
// Every sink receives the same stream: Emit per record, PageDone at each
// page boundary and Complete at the end of a retrieval run.
package sink

import (
	"encoding/json"

	"github.com/lox/marinestream/internal/models"
)

// Push forwards each record as its own JSON message as soon as it is
// produced. Page boundaries and completion are no-ops.
type Push struct {
	send func([]byte) error
}

func NewPush(send func([]byte) error) *Push {
	return &Push{send: send}
}

func (p *Push) Emit(rec models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.send(data)
}

func (p *Push) PageDone() error { return nil }

func (p *Push) Complete() error { return nil }
