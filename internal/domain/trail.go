package domain

// IsEmpty reports whether the trail has no authoritative node.
func (h TrailHead) IsEmpty() bool {
	return h.Head == nil || h.NodeCount == 0
}

// HasOnlyOneVersion reports whether there is nothing to revert to.
func (h TrailHead) HasOnlyOneVersion() bool {
	return h.NodeCount == 1
}

// PushHead makes node the new head. The caller must already have set
// node.Next to the previous head id.
func (h *TrailHead) PushHead(node TrailNode, now string) {
	id := node.ID
	h.Head = &id
	if h.Tail == nil {
		tail := node.ID
		h.Tail = &tail
	}
	h.NodeCount++
	h.LastModified = now
}

// PopHead advances the head to newHeadID. Tail is left untouched.
func (h *TrailHead) PopHead(newHeadID string, now string) {
	id := newHeadID
	h.Head = &id
	h.NodeCount--
	h.LastModified = now
}

// IsTail reports whether the node has no predecessor.
func (n TrailNode) IsTail() bool {
	return n.Next == nil
}
