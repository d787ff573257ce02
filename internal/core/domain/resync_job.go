package domain

// ResyncKind selects which reconciliation path a job runs.
type ResyncKind string

const (
	ResyncKindEnvelope    ResyncKind = "envelope"
	ResyncKindTransaction ResyncKind = "transaction"
)

// ResyncJob is an out-of-band request to reconcile part of the projection
// against chain state.
type ResyncJob struct {
	ID       string     `json:"id"`
	Network  Network    `json:"network"`
	Kind     ResyncKind `json:"kind"`
	Target   string     `json:"target"` // envelope object id or transaction digest
	Attempts int        `json:"attempts"`
	Reason   string     `json:"reason,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	// Unix seconds
	CreatedAt int64 `json:"created_at"`
}
