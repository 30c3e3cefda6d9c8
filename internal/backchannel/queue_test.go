package backchannel

import (
	"reflect"
	"testing"
)

func ids(items []Activity) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}

func event(seq int64, id string) ActivityEvent {
	return ActivityEvent{Sequence: seq, ID: id, StatusText: id}
}

func TestActivityQueueReordersBySequence(t *testing.T) {
	q := newActivityQueue()

	q.push(event(2, "b"))
	q.push(event(3, "c"))
	if items, over := q.take(); len(items) != 0 || over {
		t.Fatalf("take() = %v, %v; want nothing released before sequence 1", ids(items), over)
	}

	q.push(event(1, "a"))
	items, over := q.take()
	if got, want := ids(items), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("take() = %v, want %v", got, want)
	}
	if over {
		t.Error("stream should not be over without an end marker")
	}
}

func TestActivityQueueEndMarker(t *testing.T) {
	q := newActivityQueue()

	q.push(ActivityEvent{Sequence: 3, End: true})
	q.push(event(2, "b"))
	if _, over := q.take(); over {
		t.Fatal("stream over before sequence 1 arrived")
	}

	q.push(event(1, "a"))
	items, over := q.take()
	if got, want := ids(items), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("take() = %v, want %v", got, want)
	}
	if !over {
		t.Error("stream should be over once every event before the end marker is released")
	}

	q.push(event(4, "late"))
	if items, _ := q.take(); len(items) != 0 {
		t.Errorf("events after the end marker should be dropped, got %v", ids(items))
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
}

func TestActivityQueueEmptyStream(t *testing.T) {
	q := newActivityQueue()
	q.push(ActivityEvent{Sequence: 1, End: true})
	items, over := q.take()
	if len(items) != 0 || !over {
		t.Errorf("take() = %v, %v; want empty finished stream", ids(items), over)
	}
}

func TestActivityQueueDropsDuplicates(t *testing.T) {
	q := newActivityQueue()
	q.push(event(1, "a"))
	q.push(event(1, "a-again"))
	q.push(event(3, "c"))
	q.push(event(3, "c-again"))

	items, _ := q.take()
	if got, want := ids(items), []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("take() = %v, want %v", got, want)
	}
	if q.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", q.Dropped())
	}
}

func TestActivityQueueEndAt(t *testing.T) {
	q := newActivityQueue()
	q.push(event(1, "a"))
	q.endAt(2)

	items, over := q.take()
	if got, want := ids(items), []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("take() = %v, want %v", got, want)
	}
	if !over {
		t.Error("endAt should finish the stream")
	}
}

func TestActivityQueueClose(t *testing.T) {
	q := newActivityQueue()
	q.push(event(1, "a"))
	q.push(event(3, "c"))
	q.close()

	items, over := q.take()
	if got, want := ids(items), []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("take() = %v, want %v", got, want)
	}
	if !over {
		t.Error("closed queue should report over")
	}

	q.push(event(2, "b"))
	if items, _ := q.take(); len(items) != 0 {
		t.Errorf("closed queue accepted %v", ids(items))
	}
}

func TestActivityQueueSignalDoesNotBlock(t *testing.T) {
	q := newActivityQueue()
	for i := int64(1); i <= 10; i++ {
		q.push(event(i, "x"))
	}
	select {
	case <-q.notify:
	default:
		t.Error("notify should be pending after pushes")
	}
}
