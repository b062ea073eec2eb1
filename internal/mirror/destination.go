package mirror

import (
	"context"

	"kalshidune/internal/etl"
)

// Writer adapts a Connector to the etl.Destination interface. Replace
// mode clears the mirrored table before inserting; append mode inserts
// on top of what is there. Duplicate prevention is the warehouse
// writer's job; the mirror only ever receives rows that landed there.
type Writer struct {
	Conn Connector
}

func (w *Writer) Write(ctx context.Context, table string, sch *etl.Schema, records []etl.Record, mode etl.SyncMode) (int, error) {
	if mode == etl.SyncReplace {
		if err := w.Conn.Clear(ctx, table); err != nil {
			return 0, err
		}
	}
	if err := w.Conn.InsertRows(ctx, table, sch, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
