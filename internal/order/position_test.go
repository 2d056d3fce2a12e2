package order_test

import (
	"math/rand"
	"testing"

	"boardline/internal/order"
)

func TestReindexSpacing(t *testing.T) {
	updates := order.Reindex([]string{"c", "a", "b"})
	if len(updates) != 3 {
		t.Fatalf("expected 3 updates")
	}
	for i, u := range updates {
		if u.Position != i*order.Step {
			t.Fatalf("index %d: position %d", i, u.Position)
		}
	}
	if updates[0].ID != "c" || updates[1].ID != "a" || updates[2].ID != "b" {
		t.Fatalf("order not preserved: %+v", updates)
	}
}

func TestReindexPermutationStrictlyIncreasing(t *testing.T) {
	ids := make([]string, 40)
	for i := range ids {
		ids[i] = string(rune('a' + i%26))
	}
	rand.New(rand.NewSource(1)).Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	updates := order.Reindex(ids)
	for i := 1; i < len(updates); i++ {
		if updates[i].Position <= updates[i-1].Position {
			t.Fatalf("positions not strictly increasing at %d", i)
		}
		if updates[i].Position%order.Step != 0 {
			t.Fatalf("position %d not a multiple of %d", updates[i].Position, order.Step)
		}
	}
}

func TestAppend(t *testing.T) {
	if got := order.Append(0, false); got != 0 {
		t.Fatalf("empty column: %d", got)
	}
	if got := order.Append(0, true); got != order.Step {
		t.Fatalf("after zero: %d", got)
	}
	if got := order.Append(5000, true); got != 6000 {
		t.Fatalf("after 5000: %d", got)
	}
}

func TestBetween(t *testing.T) {
	mid, ok := order.Between(0, order.Step)
	if !ok || mid <= 0 || mid >= order.Step {
		t.Fatalf("midpoint out of range: %d %v", mid, ok)
	}
	if _, ok := order.Between(4, 5); ok {
		t.Fatalf("expected exhausted gap")
	}
	if _, ok := order.Between(7, 7); ok {
		t.Fatalf("expected exhausted equal gap")
	}
}
