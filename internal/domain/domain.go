package domain

import "encoding/json"

// DocumentState is the lifecycle state of a ReviewDocument.
type DocumentState string

const (
	StateDraft     DocumentState = "DRAFT"
	StateSubmitted DocumentState = "SUBMITTED"
	StateApproved  DocumentState = "APPROVED"
	StateActive    DocumentState = "ACTIVE"
	StateOutdated  DocumentState = "OUTDATED"
)

// ReviewDocument is one version of a solution review for a system.
type ReviewDocument struct {
	ID             string          `json:"id"`
	SystemCode     string          `json:"systemCode"`
	State          DocumentState   `json:"state" enum:"DRAFT,SUBMITTED,APPROVED,ACTIVE,OUTDATED"`
	Version        string          `json:"version,omitempty"`
	Revision       int64           `json:"revision"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"`
	CreatedAt      string          `json:"createdAt" format:"date-time"`
	LastModifiedBy string          `json:"lastModifiedBy,omitempty"`
	LastModifiedAt string          `json:"lastModifiedAt" format:"date-time"`
}

// TrailHead points at the newest and oldest TrailNode of a system's history.
type TrailHead struct {
	ID           string  `json:"id"`
	Head         *string `json:"head,omitempty"`
	Tail         *string `json:"tail,omitempty"`
	NodeCount    int     `json:"nodeCount"`
	CreatedAt    string  `json:"createdAt" format:"date-time"`
	LastModified string  `json:"lastModified" format:"date-time"`
}

// TrailNode records one document becoming authoritative. Next is the id of the
// node that was authoritative before it, nil for the tail.
type TrailNode struct {
	ID                string  `json:"id"`
	SystemCode        string  `json:"systemCode"`
	ReviewDocumentID  string  `json:"reviewDocumentId"`
	VersionLabel      string  `json:"versionLabel"`
	Next              *string `json:"next,omitempty"`
	Timestamp         string  `json:"timestamp" format:"date-time"`
	ChangeDescription string  `json:"changeDescription,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SystemCode string `json:"systemCode,omitempty"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payloadJson"`
}
