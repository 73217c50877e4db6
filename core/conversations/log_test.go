package conversations

import (
	"sync"
	"testing"
)

func TestLogAppendAssignsIncreasingSequence(t *testing.T) {
	log := NewLog()
	first := log.Append(SpeakerUser, "hello")
	second := log.Append(SpeakerAssistant, "hi there")

	if first.Sequence >= second.Sequence {
		t.Fatalf("expected increasing sequence numbers, got %d then %d", first.Sequence, second.Sequence)
	}
	turns := log.Turns()
	if len(turns) != 2 || turns[0].Text != "hello" || turns[1].Speaker != SpeakerAssistant {
		t.Fatalf("unexpected turns %+v", turns)
	}
}

func TestLogTurnsReturnsCopy(t *testing.T) {
	log := NewLog()
	log.Append(SpeakerUser, "hello")

	turns := log.Turns()
	turns[0].Text = "changed"

	if got := log.Turns()[0].Text; got != "hello" {
		t.Fatalf("expected stored turn to be unchanged, got %q", got)
	}
}

func TestLogResetKeepsSequenceMonotonic(t *testing.T) {
	log := NewLog()
	log.Append(SpeakerUser, "one")
	before := log.Append(SpeakerAssistant, "two")

	if cleared := log.Reset(); cleared != 2 {
		t.Fatalf("expected 2 cleared turns, got %d", cleared)
	}
	if log.Len() != 0 {
		t.Fatalf("expected empty log after reset, got %d turns", log.Len())
	}
	if _, ok := log.Last(); ok {
		t.Fatalf("expected no last turn after reset")
	}

	after := log.Append(SpeakerUser, "three")
	if after.Sequence <= before.Sequence {
		t.Fatalf("expected sequence after reset to exceed %d, got %d", before.Sequence, after.Sequence)
	}
}

func TestLogIterators(t *testing.T) {
	log := NewLog()
	log.Append(SpeakerUser, "a")
	log.Append(SpeakerAssistant, "b")
	log.Append(SpeakerUser, "c")

	var forward, backward string
	for turn := range log.Values() {
		forward += turn.Text
	}
	for turn := range log.RValues() {
		backward += turn.Text
		if turn.Text == "b" {
			break
		}
	}

	if forward != "abc" {
		t.Fatalf("expected abc, got %q", forward)
	}
	if backward != "cb" {
		t.Fatalf("expected cb, got %q", backward)
	}
}

func TestLogConcurrentReadersDuringAppend(t *testing.T) {
	log := NewLog()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				turns := log.Turns()
				for i := 1; i < len(turns); i++ {
					if turns[i].Sequence <= turns[i-1].Sequence {
						t.Errorf("expected ordered snapshot, got %+v", turns)
						return
					}
				}
			}
		}()
	}
	for i := range 100 {
		if i%2 == 0 {
			log.Append(SpeakerUser, "q")
		} else {
			log.Append(SpeakerAssistant, "a")
		}
	}
	wg.Wait()

	if log.Len() != 100 {
		t.Fatalf("expected 100 turns, got %d", log.Len())
	}
}
