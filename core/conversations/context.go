package conversations

// History exposes a read-only view of a conversation log.
type History interface {
	// Ordering: oldest -> newest.
	Turns() []Turn
	Len() int
}
