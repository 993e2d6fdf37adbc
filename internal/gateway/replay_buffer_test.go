package gateway

import "testing"

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 3; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	got := rb.Range(1, 10)
	if len(got) != 5 {
		t.Fatalf("Range(1,10): expected 5, got %d", len(got))
	}
	if got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("kept seqs %d..%d, want 4..8", got[0].Seq, got[4].Seq)
	}
}

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	got, ok := rb.Since(5)
	if !ok || len(got) != 3 || got[0].Seq != 6 {
		t.Fatalf("Since(5) = %d entries ok=%v", len(got), ok)
	}
	if got, ok := rb.Since(3); !ok || len(got) != 5 {
		t.Fatalf("Since(3) = %d entries ok=%v, want 5 true", len(got), ok)
	}
	if _, ok := rb.Since(1); ok {
		t.Fatal("Since(1) must report the evicted gap")
	}
	if got, ok := rb.Since(8); !ok || len(got) != 0 {
		t.Fatalf("Since(8) = %d entries ok=%v", len(got), ok)
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'
	if got := rb.Range(1, 1); string(got[0].Data) != "abc" {
		t.Fatalf("stored %q", got[0].Data)
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Range(1, 100); len(got) != 0 {
		t.Fatalf("empty buffer Range should return 0, got %d", len(got))
	}
	if _, ok := rb.Since(42); !ok {
		t.Fatal("empty buffer has no gap")
	}
}
