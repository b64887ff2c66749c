package sweep

import "testing"

func TestHistory_EmptyHasNoLast(t *testing.T) {
	h := NewHistory(3)
	if h.Last() != nil {
		t.Error("expected nil last report on empty history")
	}
}

func TestHistory_NewestFirstAndBounded(t *testing.T) {
	h := NewHistory(2)

	first := &Report{Summary: Summary{Deactivated: 1}}
	second := &Report{Summary: Summary{Deactivated: 2}}
	third := &Report{Summary: Summary{Deactivated: 3}}

	h.Add(first)
	h.Add(second)
	h.Add(third)

	if h.Last() != third {
		t.Error("expected the most recent report first")
	}
	if h.Len() != 2 {
		t.Errorf("expected history bounded at 2, got %d", h.Len())
	}
}
