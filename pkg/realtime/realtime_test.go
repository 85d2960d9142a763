package realtime

import "testing"

func TestHubBroadcast(t *testing.T) {
	h := NewHub(1)
	id1, ch1 := h.Register()
	_, ch2 := h.Register()
	if h.Size() != 2 {
		t.Fatalf("size = %d", h.Size())
	}

	h.Broadcast(Event{Type: TypePreferences})
	// Buffers are full; this one is dropped.
	h.Broadcast(Event{Type: TypeView})

	for _, ch := range []<-chan Event{ch1, ch2} {
		ev := <-ch
		if ev.Type != TypePreferences {
			t.Errorf("got %q", ev.Type)
		}
		select {
		case ev := <-ch:
			t.Errorf("unexpected event %q", ev.Type)
		default:
		}
	}

	h.Unregister(id1)
	h.Unregister(id1)
	if _, ok := <-ch1; ok {
		t.Error("channel not closed")
	}
	if h.Size() != 1 {
		t.Errorf("size = %d", h.Size())
	}
}
