package model

// SessionID is the opaque handle issued by the ingestion service for an uploaded document
type SessionID string

func (x SessionID) String() string {
	return string(x)
}
