package conversations

import (
	"iter"
	"sync"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

func (s Speaker) String() string {
	return string(s)
}

// Turn is one line of the dialogue. Sequence numbers grow strictly and are
// never reused, not even after Reset.
type Turn struct {
	Speaker  Speaker
	Text     string
	Sequence int64
}

// Log is an append-only record of the conversation. It is safe for
// concurrent readers while a single writer appends.
type Log struct {
	mu       sync.RWMutex
	turns    []Turn
	sequence int64
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(speaker Speaker, text string) Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	turn := Turn{Speaker: speaker, Text: text, Sequence: l.sequence}
	l.turns = append(l.turns, turn)
	return turn
}

// Turns returns a snapshot copy.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	turns := make([]Turn, len(l.turns))
	copy(turns, l.turns)
	return turns
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

func (l *Log) Last() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// Values iterates over a snapshot from oldest to newest.
func (l *Log) Values() iter.Seq[Turn] {
	turns := l.Turns()
	return func(yield func(Turn) bool) {
		for _, turn := range turns {
			if !yield(turn) {
				return
			}
		}
	}
}

// RValues iterates over a snapshot from newest to oldest.
func (l *Log) RValues() iter.Seq[Turn] {
	turns := l.Turns()
	return func(yield func(Turn) bool) {
		for i := len(turns) - 1; i >= 0; i-- {
			if !yield(turns[i]) {
				return
			}
		}
	}
}

// Reset clears the log and returns how many turns were dropped.
func (l *Log) Reset() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cleared := len(l.turns)
	l.turns = nil
	return cleared
}
