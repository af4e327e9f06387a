package server

import (
	"encoding/json"

	"reviewline/internal/domain"
	"reviewline/internal/lifecycle"
)

// Request payloads

type TransitionRequest struct {
	DocumentID string `json:"documentId" minLength:"1" doc:"Review document id"`
	Operation  string `json:"operation" minLength:"1" doc:"SUBMIT, REMOVE_SUBMISSION, APPROVE, ACTIVATE, UNAPPROVE or MARK_OUTDATED (case-insensitive)"`
	ModifiedBy string `json:"modifiedBy" minLength:"1" doc:"Actor recorded as lastModifiedBy"`
	Comment    string `json:"comment,omitempty"`
}

type CreateReviewRequest struct {
	ID         string         `json:"id,omitempty"`
	SystemCode string         `json:"systemCode" minLength:"1"`
	CreatedBy  string         `json:"createdBy" minLength:"1"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type ForkReviewRequest struct {
	CreatedBy string `json:"createdBy" minLength:"1"`
}

type UpdateReviewRequest struct {
	ModifiedBy string         `json:"modifiedBy" minLength:"1"`
	Payload    map[string]any `json:"payload"`
}

// Responses

type ReviewDocumentResponse struct {
	ID             string          `json:"id"`
	SystemCode     string          `json:"systemCode"`
	State          string          `json:"state" enum:"DRAFT,SUBMITTED,APPROVED,ACTIVE,OUTDATED"`
	Version        string          `json:"version,omitempty"`
	Revision       int64           `json:"revision"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"`
	CreatedAt      string          `json:"createdAt"`
	LastModifiedBy string          `json:"lastModifiedBy,omitempty"`
	LastModifiedAt string          `json:"lastModifiedAt"`
	Operations     []string        `json:"availableOperations"`
}

type OperationsResponse struct {
	DocumentID string   `json:"documentId"`
	State      string   `json:"state"`
	Operations []string `json:"operations"`
}

type TrailNodeResponse struct {
	ID                string `json:"id"`
	ReviewDocumentID  string `json:"reviewDocumentId"`
	VersionLabel      string `json:"versionLabel"`
	Next              string `json:"next,omitempty"`
	Timestamp         string `json:"timestamp"`
	ChangeDescription string `json:"changeDescription,omitempty"`
}

type TrailResponse struct {
	SystemCode   string              `json:"systemCode"`
	Head         string              `json:"head,omitempty"`
	Tail         string              `json:"tail,omitempty"`
	NodeCount    int                 `json:"nodeCount"`
	CreatedAt    string              `json:"createdAt"`
	LastModified string              `json:"lastModified"`
	Nodes        []TrailNodeResponse `json:"nodes"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	SystemCode string         `json:"systemCode,omitempty"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func documentResponse(d domain.ReviewDocument) ReviewDocumentResponse {
	return ReviewDocumentResponse{
		ID:             d.ID,
		SystemCode:     d.SystemCode,
		State:          string(d.State),
		Version:        d.Version,
		Revision:       d.Revision,
		Payload:        d.Payload,
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt,
		LastModifiedBy: d.LastModifiedBy,
		LastModifiedAt: d.LastModifiedAt,
		Operations:     lifecycle.Names(lifecycle.AvailableOperations(d.State)),
	}
}

func mapDocuments(items []domain.ReviewDocument) []ReviewDocumentResponse {
	res := make([]ReviewDocumentResponse, 0, len(items))
	for _, d := range items {
		res = append(res, documentResponse(d))
	}
	return res
}

func trailResponse(h domain.TrailHead, nodes []domain.TrailNode) TrailResponse {
	res := TrailResponse{
		SystemCode:   h.ID,
		Head:         strPtrValue(h.Head),
		Tail:         strPtrValue(h.Tail),
		NodeCount:    h.NodeCount,
		CreatedAt:    h.CreatedAt,
		LastModified: h.LastModified,
		Nodes:        make([]TrailNodeResponse, 0, len(nodes)),
	}
	for _, n := range nodes {
		res.Nodes = append(res.Nodes, TrailNodeResponse{
			ID:                n.ID,
			ReviewDocumentID:  n.ReviewDocumentID,
			VersionLabel:      n.VersionLabel,
			Next:              strPtrValue(n.Next),
			Timestamp:         n.Timestamp,
			ChangeDescription: n.ChangeDescription,
		})
	}
	return res
}

func eventResponse(ev domain.Event) EventResponse {
	res := EventResponse{
		ID:         ev.ID,
		TS:         ev.TS,
		Type:       ev.Type,
		SystemCode: ev.SystemCode,
		EntityKind: ev.EntityKind,
		EntityID:   ev.EntityID,
		ActorID:    ev.ActorID,
	}
	if ev.Payload != "" {
		_ = json.Unmarshal([]byte(ev.Payload), &res.Payload)
	}
	return res
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
