package relay

// MessageHistory - interface to access ordered history of broadcast payloads
type MessageHistory interface {
	// Push - push new payload into history
	Push([]byte)
	// Tail - get latest n payloads joined in chronological order
	Tail(n int) []byte
}

func historyPush(h MessageHistory, payload []byte) {
	if h == nil {
		return
	}
	h.Push(payload)
}

func historyTail(h MessageHistory, n int) []byte {
	if h == nil || n == 0 {
		return nil
	}
	return h.Tail(n)
}
