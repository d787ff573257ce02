package sui

import "encoding/json"

// EventID identifies an event within the transaction that emitted it.
type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

// Event is a SuiEvent as returned by suix_subscribeEvent and sui_getTransactionBlock.
type Event struct {
	ID                EventID         `json:"id"`
	PackageID         string          `json:"packageId"`
	TransactionModule string          `json:"transactionModule"`
	Sender            string          `json:"sender"`
	Type              string          `json:"type"`
	ParsedJSON        json.RawMessage `json:"parsedJson"`
	TimestampMs       json.RawMessage `json:"timestampMs,omitempty"`
}

// ObjectResponse is the result of sui_getObject.
type ObjectResponse struct {
	Data  *ObjectData     `json:"data"`
	Error json.RawMessage `json:"error,omitempty"`
	// Older nodes put the type at the top level
	Type string `json:"type,omitempty"`
}

// ObjectData is the object payload of sui_getObject.
type ObjectData struct {
	ObjectID            string          `json:"objectId"`
	Version             string          `json:"version"`
	Digest              string          `json:"digest"`
	Type                string          `json:"type"`
	Owner               json.RawMessage `json:"owner,omitempty"`
	PreviousTransaction string          `json:"previousTransaction"`
	Content             *ObjectContent  `json:"content"`
}

// PastObjectResponse is the result of sui_tryGetPastObject. Details holds an
// ObjectData only when Status is VersionFound.
type PastObjectResponse struct {
	Status  string          `json:"status"`
	Details json.RawMessage `json:"details"`
}

// PastObjectVersionFound is the status of a successful past object lookup.
const PastObjectVersionFound = "VersionFound"

// ObjectContent is the parsed Move content of an object.
type ObjectContent struct {
	DataType string                     `json:"dataType"`
	Type     string                     `json:"type"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

// TransactionBlock is the subset of sui_getTransactionBlock used for reconciliation.
type TransactionBlock struct {
	Digest      string          `json:"digest"`
	Events      []Event         `json:"events"`
	TimestampMs json.RawMessage `json:"timestampMs,omitempty"`
}
