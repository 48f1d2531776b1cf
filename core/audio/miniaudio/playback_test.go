package miniaudio

import (
	"bytes"
	"testing"
	"time"
)

func TestProcessAudioFiresMarksOncePlayed(t *testing.T) {
	c := &playbackClient{}
	reached := make(chan string, 2)
	onMark := func(name string) { reached <- name }

	c.pending = []byte{1, 2, 3, 4}
	_ = c.Mark("first", onMark)
	c.pending = append(c.pending, 5, 6, 7, 8)
	_ = c.Mark("second", onMark)

	process := c.processAudio(2)

	out := make([]byte, 6)
	process(out, nil, 3)
	if !bytes.Equal(out, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected output %v", out)
	}
	select {
	case name := <-reached:
		if name != "first" {
			t.Fatalf("expected first mark, got %s", name)
		}
	case <-time.After(time.Second):
		t.Fatalf("first mark was not reached")
	}

	out = []byte{9, 9, 9, 9, 9, 9}
	process(out, nil, 3)
	if !bytes.Equal(out, []byte{7, 8, 0, 0, 0, 0}) {
		t.Fatalf("expected remaining audio followed by silence, got %v", out)
	}
	select {
	case name := <-reached:
		if name != "second" {
			t.Fatalf("expected second mark, got %s", name)
		}
	case <-time.After(time.Second):
		t.Fatalf("second mark was not reached")
	}
}

func TestClearBufferDropsPendingMarks(t *testing.T) {
	c := &playbackClient{}
	reached := make(chan string, 1)

	c.pending = []byte{1, 2}
	_ = c.Mark("dropped", func(name string) { reached <- name })
	c.ClearBuffer()

	c.processAudio(2)(make([]byte, 4), nil, 2)

	select {
	case name := <-reached:
		t.Fatalf("cleared mark %s must not fire", name)
	case <-time.After(50 * time.Millisecond):
	}
}
