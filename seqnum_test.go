package telsa

import "testing"

func TestSequenceCounterIncrements(t *testing.T) {
	var c sequenceCounter
	first, err := c.value()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	second, err := c.value()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("expected 0 then 1, got %d then %d", first, second)
	}
}

func TestSequenceCounterOverflowIsFatal(t *testing.T) {
	c := sequenceCounter{next: ^uint64(0)}
	if _, err := c.value(); err != nil {
		t.Fatalf("the call that returns the maximum value must still succeed: %s", err)
	}
	if _, err := c.value(); err != errSequenceOverflow {
		t.Fatalf("expected errSequenceOverflow once the counter wraps, got %v", err)
	}
}
