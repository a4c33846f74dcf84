package kb

import "sync/atomic"

// Holder publishes the active KnowledgeBase to concurrent readers.
type Holder struct {
	current atomic.Pointer[KnowledgeBase]
}

// NewHolder creates a holder serving kb.
func NewHolder(kb *KnowledgeBase) *Holder {
	h := &Holder{}
	h.current.Store(kb)
	return h
}

// Current returns the active knowledge base.
func (h *Holder) Current() *KnowledgeBase {
	return h.current.Load()
}

// Swap replaces the active knowledge base and returns the previous one.
func (h *Holder) Swap(kb *KnowledgeBase) *KnowledgeBase {
	return h.current.Swap(kb)
}
