// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	TransactionCreated   EventType = "TRANSACTION_CREATED"
	TransactionUpdated   EventType = "TRANSACTION_UPDATED"
	TransactionReversed  EventType = "TRANSACTION_REVERSED"
	AccountUpdated       EventType = "ACCOUNT_UPDATED"
	BalanceDriftDetected EventType = "BALANCE_DRIFT_DETECTED"
	BackupCompleted      EventType = "BACKUP_COMPLETED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
)

// EventData is the interface implemented by all typed event payloads
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// TransactionEventData carries the ledger mutation events
type TransactionEventData struct {
	TransactionID int64  `json:"transaction_id"`
	Kind          string `json:"kind"`
	Amount        int64  `json:"amount"`
	FromAccountID *int64 `json:"from_account_id,omitempty"`
	ToAccountID   *int64 `json:"to_account_id,omitempty"`
	Status        string `json:"status"`
}

// EventType returns the event type for TransactionEventData.
// The same payload shape serves created/updated/reversed; the concrete type
// is chosen at emit time.
func (d *TransactionEventData) EventType() EventType {
	return TransactionCreated
}

// AccountEventData carries account admin-flow events
type AccountEventData struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
}

// EventType returns the event type for AccountEventData
func (d *AccountEventData) EventType() EventType {
	return AccountUpdated
}

// BalanceDriftData reports a mismatch between a stored balance and the value
// recomputed from transaction history
type BalanceDriftData struct {
	AccountID int64 `json:"account_id"`
	Stored    int64 `json:"stored"`
	Computed  int64 `json:"computed"`
	Drift     int64 `json:"drift"`
}

// EventType returns the event type for BalanceDriftData
func (d *BalanceDriftData) EventType() EventType {
	return BalanceDriftDetected
}

// BackupCompletedData reports a finished backup upload
type BackupCompletedData struct {
	ObjectKey string `json:"object_key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData carries background failure notifications
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
