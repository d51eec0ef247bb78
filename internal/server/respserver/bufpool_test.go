package respserver

import "testing"

func TestBufferPool_Reuse(t *testing.T) {
	p := NewBufferPool(2, 64)

	b := p.Get()
	if len(b) != 0 || cap(b) != 64 {
		t.Fatalf("Get() = len %d cap %d, want 0/64", len(b), cap(b))
	}
	b = append(b, "hello"...)
	p.Put(b)

	b2 := p.Get()
	if len(b2) != 0 {
		t.Errorf("recycled buffer not reset: len = %d", len(b2))
	}
	if cap(b2) != 64 {
		t.Errorf("recycled buffer cap = %d, want 64", cap(b2))
	}
}

func TestBufferPool_ExhaustionFallsBack(t *testing.T) {
	p := NewBufferPool(1, 32)

	// Drain the pool, then Get must still produce buffers.
	a := p.Get()
	b := p.Get()
	c := p.Get()
	for _, buf := range [][]byte{a, b, c} {
		if cap(buf) != 32 {
			t.Errorf("fallback buffer cap = %d, want 32", cap(buf))
		}
	}
}

func TestBufferPool_BoundedPut(t *testing.T) {
	p := NewBufferPool(1, 32)

	p.Put(make([]byte, 0, 32))
	p.Put(make([]byte, 0, 32)) // beyond the bound: dropped
	if got := p.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}
}

func TestBufferPool_DropsOversizedBuffers(t *testing.T) {
	p := NewBufferPool(4, 32)

	p.Put(make([]byte, 0, 1024))
	if got := p.Size(); got != 0 {
		t.Errorf("oversized buffer was pooled, Size() = %d", got)
	}
}
