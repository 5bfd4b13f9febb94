package router

import (
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_FIFOOrder(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	for i := 0; i < 5; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}
	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	for i := 0; i < 5; i++ {
		got, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() empty at item %d", i)
		}
		if got != i {
			t.Errorf("received %d, want %d", got, i)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after drain", buf.Len())
	}
}

func TestGrowableBuffer_GrowsBeforeSeventyPercent(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	// The 7th message crosses 70% of a 10-slot ring.
	for i := 0; i < 7; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Capacity <= 10 {
		t.Errorf("Capacity = %d, expected a doubled ring", stats.Capacity)
	}
	if stats.ResizeCount != 1 {
		t.Errorf("ResizeCount = %d, want 1", stats.ResizeCount)
	}

	// Growth must not reorder or drop anything.
	for i := 0; i < 7; i++ {
		got, ok := buf.TryReceive()
		if !ok || got != i {
			t.Fatalf("TryReceive() = %d, %v; want %d, true", got, ok, i)
		}
	}
}

func TestGrowableBuffer_RepeatedGrowth(t *testing.T) {
	buf := NewGrowableBuffer[int](4)

	for i := 0; i < 100; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100", stats.Count)
	}
	if stats.ResizeCount < 3 {
		t.Errorf("ResizeCount = %d, expected at least 3", stats.ResizeCount)
	}

	for i := 0; i < 100; i++ {
		got, ok := buf.TryReceive()
		if !ok || got != i {
			t.Fatalf("TryReceive() = %d, %v; want %d, true", got, ok, i)
		}
	}
}

func TestGrowableBuffer_ReceiveBlocksUntilSend(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	received := make(chan int, 1)

	go func() {
		if val, ok := buf.Receive(); ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond) // let the receiver park
	buf.Send(42)

	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("received %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked receiver never woke")
	}
}

func TestGrowableBuffer_CloseDrainsThenStops(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	buf.Send(1)
	buf.Send(2)
	buf.Close()

	if buf.Send(3) {
		t.Error("Send accepted a message after Close")
	}

	// Buffered messages survive the close.
	for _, want := range []int{1, 2} {
		got, ok := buf.TryReceive()
		if !ok || got != want {
			t.Errorf("TryReceive() = %d, %v; want %d, true", got, ok, want)
		}
	}
	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive returned a message from a drained, closed buffer")
	}
}

func TestGrowableBuffer_CloseWakesBlockedReceiver(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	done := make(chan bool, 1)

	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive reported a message from an empty, closed buffer")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the blocked receiver")
	}
}

func TestGrowableBuffer_DrainTo(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	for i := 0; i < 10; i++ {
		buf.Send(i)
	}

	batch := buf.DrainTo(5)
	if len(batch) != 5 {
		t.Fatalf("DrainTo(5) returned %d messages", len(batch))
	}
	for i, got := range batch {
		if got != i {
			t.Errorf("batch[%d] = %d, want %d", i, got, i)
		}
	}
	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5 after partial drain", buf.Len())
	}

	// Zero means everything.
	if rest := buf.DrainTo(0); len(rest) != 5 {
		t.Errorf("DrainTo(0) returned %d messages, want 5", len(rest))
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestGrowableBuffer_ConcurrentSendReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	const total = 1000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			buf.Send(i)
		}
	}()

	received := make([]int, 0, total)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			if val, ok := buf.Receive(); ok {
				received = append(received, val)
			}
		}
	}()

	wg.Wait()

	if len(received) != total {
		t.Fatalf("received %d messages, want %d", len(received), total)
	}
	// Single sender, single receiver: order is preserved end to end.
	for i, val := range received {
		if val != i {
			t.Fatalf("received[%d] = %d, want %d", i, val, i)
		}
	}
}

func TestGrowableBuffer_GrowthWithWrappedRing(t *testing.T) {
	buf := NewGrowableBuffer[int](5)

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)

	buf.TryReceive() // 1
	buf.TryReceive() // 2

	// Writes wrap past the end of the ring.
	buf.Send(4)
	buf.Send(5)
	buf.Send(6)

	// And now growth has to unwrap head..tail into the new ring.
	buf.Send(7)
	buf.Send(8)

	for _, want := range []int{3, 4, 5, 6, 7, 8} {
		got, ok := buf.TryReceive()
		if !ok || got != want {
			t.Fatalf("TryReceive() = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestGrowableBuffer_Stats(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	stats := buf.Stats()
	if stats.Count != 0 || stats.Capacity != 10 || stats.TotalReceived != 0 || stats.TotalSent != 0 {
		t.Errorf("fresh buffer stats: %+v", stats)
	}

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)

	stats = buf.Stats()
	if stats.Count != 3 || stats.TotalReceived != 3 {
		t.Errorf("stats after sends: %+v", stats)
	}

	buf.TryReceive()
	buf.TryReceive()

	stats = buf.Stats()
	if stats.Count != 1 || stats.TotalSent != 2 {
		t.Errorf("stats after receives: %+v", stats)
	}
}

func TestNewGrowableBuffer_ClampsCapacity(t *testing.T) {
	for _, initial := range []int{0, -5} {
		buf := NewGrowableBuffer[int](initial)
		if buf.Cap() != 1 {
			t.Errorf("NewGrowableBuffer(%d).Cap() = %d, want 1", initial, buf.Cap())
		}
	}
}
