// internal/buffer/ring_test.go
package buffer

import (
	"bytes"
	"testing"
)

func TestRingWriteRead(t *testing.T) {
	r := NewRing[byte](4)

	if r.Cap() != 4 {
		t.Fatalf("Cap() = %d, want 4", r.Cap())
	}
	if !r.Write('a') || !r.Write('b') {
		t.Fatal("writes into empty ring should succeed")
	}
	if r.Len() != 2 || r.Free() != 2 {
		t.Fatalf("Len()/Free() = %d/%d, want 2/2", r.Len(), r.Free())
	}

	b, ok := r.Read()
	if !ok || b != 'a' {
		t.Fatalf("Read() = %q, %v, want 'a', true", b, ok)
	}
	b, ok = r.Read()
	if !ok || b != 'b' {
		t.Fatalf("Read() = %q, %v, want 'b', true", b, ok)
	}
	if _, ok := r.Read(); ok {
		t.Fatal("Read() on empty ring should fail")
	}
}

func TestRingRefusesWhenFull(t *testing.T) {
	r := NewRing[byte](2)
	r.Write('x')
	r.Write('y')

	if r.Write('z') {
		t.Fatal("Write() into full ring should fail")
	}
	if r.Len() != 2 {
		t.Fatalf("failed write must not change Len(): got %d", r.Len())
	}
	b, _ := r.Read()
	if b != 'x' {
		t.Fatalf("failed write must not corrupt contents: got %q", b)
	}
}

func TestRingWriteAllAtomicity(t *testing.T) {
	r := NewRing[byte](4)
	r.Write('a')

	if r.WriteAll([]byte("wxyz")) {
		t.Fatal("WriteAll() larger than free space should fail")
	}
	if r.Len() != 1 {
		t.Fatalf("rejected WriteAll() must not partially write: Len() = %d", r.Len())
	}
	if !r.WriteAll([]byte("bcd")) {
		t.Fatal("WriteAll() that exactly fits should succeed")
	}

	var got []byte
	for {
		b, ok := r.Read()
		if !ok {
			break
		}
		got = append(got, b)
	}
	if !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("drained %q, want %q", got, "abcd")
	}
}

func TestRingWrapAround(t *testing.T) {
	r := NewRing[byte](3)
	seq := []byte("abcdefghij")

	// Interleave writes and reads so the indices wrap several times.
	var got []byte
	for _, b := range seq {
		if !r.Write(b) {
			t.Fatalf("write %q refused with Free() = %d", b, r.Free())
		}
		v, ok := r.Read()
		if !ok {
			t.Fatal("read after write should succeed")
		}
		got = append(got, v)
	}
	if !bytes.Equal(got, seq) {
		t.Fatalf("wrap-around reordered bytes: got %q, want %q", got, seq)
	}
}

func TestRingCapacityInvariant(t *testing.T) {
	r := NewRing[byte](8)

	// Arbitrary mixed sequence of writes and reads.
	ops := []struct {
		write bool
		n     int
	}{
		{true, 5}, {false, 2}, {true, 6}, {false, 8}, {true, 8}, {true, 1}, {false, 3},
	}
	for _, op := range ops {
		for i := 0; i < op.n; i++ {
			if op.write {
				accepted := r.Write(byte(i))
				if accepted != (r.Len() <= r.Cap()) && r.Len() > r.Cap() {
					t.Fatal("accepted write overflowed capacity")
				}
			} else {
				r.Read()
			}
			if r.Len() < 0 || r.Len() > r.Cap() {
				t.Fatalf("Len() = %d outside [0, %d]", r.Len(), r.Cap())
			}
			if r.Len()+r.Free() != r.Cap() {
				t.Fatalf("Len()+Free() = %d, want %d", r.Len()+r.Free(), r.Cap())
			}
		}
	}
}

func TestRingPeekAndClear(t *testing.T) {
	r := NewRing[byte](4)
	if _, ok := r.Peek(); ok {
		t.Fatal("Peek() on empty ring should fail")
	}
	r.WriteAll([]byte("ab"))

	b, ok := r.Peek()
	if !ok || b != 'a' {
		t.Fatalf("Peek() = %q, %v, want 'a', true", b, ok)
	}
	if r.Len() != 2 {
		t.Fatal("Peek() must not consume")
	}

	r.Clear()
	if r.Len() != 0 || r.Free() != 4 {
		t.Fatalf("after Clear(): Len()/Free() = %d/%d, want 0/4", r.Len(), r.Free())
	}
	if !r.WriteAll([]byte("wxyz")) {
		t.Fatal("cleared ring should accept a full write")
	}
}
