package observe

import "testing"

func TestPublishOrder(t *testing.T) {
	var h Hub[string]
	var got []string
	h.Subscribe(func(s string) { got = append(got, "a:"+s) })
	h.Subscribe(func(s string) { got = append(got, "b:"+s) })

	h.Publish("x")

	want := []string{"a:x", "b:x"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	var h Hub[int]
	calls := 0
	unsub := h.Subscribe(func(int) { calls++ })

	h.Publish(1)
	unsub()
	unsub()
	h.Publish(2)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	var h Hub[int]
	var unsub func()
	calls := 0
	unsub = h.Subscribe(func(int) {
		calls++
		unsub()
	})

	h.Publish(1)
	h.Publish(2)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
