package netio

import (
	"testing"
	"time"
)

func TestRequestQueueFIFOOrder(t *testing.T) {
	q := NewRequestQueue()
	q.Push(RequestItem{Payload: []byte("a")})
	q.Push(RequestItem{Payload: []byte("b")})
	q.Push(RequestItem{Payload: []byte("c")})

	for _, want := range []string{"a", "b", "c"} {
		item, ok := q.Pop()
		if !ok {
			t.Fatalf("expected an item")
		}
		if string(item.Payload) != want {
			t.Fatalf("got %q want %q", item.Payload, want)
		}
	}
}

func TestRequestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewRequestQueue()
	done := make(chan RequestItem, 1)
	go func() {
		item, ok := q.Pop()
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(RequestItem{Payload: []byte("later")})

	select {
	case item := <-done:
		if string(item.Payload) != "later" {
			t.Fatalf("got %q", item.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop did not unblock after Push")
	}
}

func TestRequestQueueCloseUnblocksPop(t *testing.T) {
	q := NewRequestQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected Pop to report false after Close on an empty queue")
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop did not unblock after Close")
	}
}
