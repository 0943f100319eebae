package ir

import "fmt"

// ToolCallIndex correlates tool-call ids with tool names while one document is
// imported. Importers create a fresh index per Import call and drop it when the
// call returns; an index must never be shared between documents.
type ToolCallIndex struct {
	names    map[string]string
	pending  map[string][]string
	reserved map[string]struct{}
	seq      int
}

// NewToolCallIndex returns an empty index.
func NewToolCallIndex() *ToolCallIndex {
	return &ToolCallIndex{
		names:    make(map[string]string),
		pending:  make(map[string][]string),
		reserved: make(map[string]struct{}),
	}
}

// Reserve marks ids that appear later in the document so NextCallID never
// hands them out.
func (x *ToolCallIndex) Reserve(ids ...string) {
	for _, id := range ids {
		if id != "" {
			x.reserved[id] = struct{}{}
		}
	}
}

// Record maps callID to toolName. A repeated id overwrites the earlier entry.
func (x *ToolCallIndex) Record(callID, toolName string) {
	if prev, ok := x.names[callID]; ok {
		x.drop(prev, callID)
	}
	x.names[callID] = toolName
	x.pending[toolName] = append(x.pending[toolName], callID)
}

// Resolve returns the tool name recorded for callID and marks the call as
// answered. An id that was never recorded yields *UnresolvedToolCallError.
func (x *ToolCallIndex) Resolve(callID string) (string, error) {
	name, ok := x.names[callID]
	if !ok {
		return "", &UnresolvedToolCallError{CallID: callID}
	}
	x.drop(name, callID)
	return name, nil
}

// Claim returns the oldest unanswered call id recorded for toolName. It serves
// formats whose tool results carry a name but no id.
func (x *ToolCallIndex) Claim(toolName string) (string, bool) {
	queue := x.pending[toolName]
	if len(queue) == 0 {
		return "", false
	}
	x.pending[toolName] = queue[1:]
	return queue[0], true
}

// NextCallID synthesizes an id that is neither recorded nor reserved.
func (x *ToolCallIndex) NextCallID() string {
	for {
		x.seq++
		id := fmt.Sprintf("call_%d", x.seq)
		if _, taken := x.names[id]; taken {
			continue
		}
		if _, taken := x.reserved[id]; taken {
			continue
		}
		return id
	}
}

// Len returns the number of recorded ids.
func (x *ToolCallIndex) Len() int {
	return len(x.names)
}

func (x *ToolCallIndex) drop(toolName, callID string) {
	queue := x.pending[toolName]
	for i, id := range queue {
		if id == callID {
			x.pending[toolName] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}
