package bucket

import "testing"

func TestOfRange(t *testing.T) {
	ids := []string{
		"00000000-0000-0000-0000-000000000001",
		"aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		"",
		"printer",
	}
	for _, id := range ids {
		if b := Of(id); b < 0 || b > 99 {
			t.Errorf("Of(%q) = %d, out of range", id, b)
		}
	}
}

func TestOfDeterministic(t *testing.T) {
	id := "00000000-0000-0000-0000-000000000001"
	first := Of(id)
	for i := 0; i < 10; i++ {
		if got := Of(id); got != first {
			t.Fatalf("Of(%q) unstable: %d then %d", id, first, got)
		}
	}
}

func TestOfSpread(t *testing.T) {
	// Distinct identities should not all collapse into one bucket.
	seen := make(map[int]bool)
	ids := []string{
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000003",
		"00000000-0000-0000-0000-000000000004",
		"00000000-0000-0000-0000-000000000005",
		"00000000-0000-0000-0000-000000000006",
		"00000000-0000-0000-0000-000000000007",
		"00000000-0000-0000-0000-000000000008",
	}
	for _, id := range ids {
		seen[Of(id)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected spread across buckets, got %v", seen)
	}
}
