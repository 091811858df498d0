package player

import "testing"

type nullOutbound struct{}

func (nullOutbound) Send(v any) error { return nil }

func TestRegistry_AddAssignsInsertionOrderIndex(t *testing.T) {
	r := NewRegistry()
	i0, err := r.Add("A", "10.0.0.1", nullOutbound{})
	if err != nil || i0 != 0 {
		t.Fatalf("want index 0, nil err; got %d, %v", i0, err)
	}
	i1, err := r.Add("B", "10.0.0.2", nullOutbound{})
	if err != nil || i1 != 1 {
		t.Fatalf("want index 1, nil err; got %d, %v", i1, err)
	}
}

func TestRegistry_AddDuplicateIDRejected(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add("A", "10.0.0.1", nullOutbound{}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := r.Add("A", "10.0.0.1", nullOutbound{}); err != ErrDuplicateID {
		t.Fatalf("want ErrDuplicateID, got %v", err)
	}
}

func TestRegistry_RemoveThenReaddGetsFreshIndex(t *testing.T) {
	r := NewRegistry()
	r.Add("A", "10.0.0.1", nullOutbound{})
	r.Remove("A")
	idx, err := r.Add("A", "10.0.0.1", nullOutbound{})
	if err != nil {
		t.Fatalf("readd after remove: %v", err)
	}
	if idx != 1 {
		t.Fatalf("want fresh index 1, got %d", idx)
	}
}

func TestRegistry_UpdateScoreHasNoFloor(t *testing.T) {
	r := NewRegistry()
	r.Add("A", "10.0.0.1", nullOutbound{})
	got := r.UpdateScore("A", -100)
	if got != -100 {
		t.Fatalf("want -100 (no floor), got %d", got)
	}
}

func TestRegistry_UpdateHPClampsBothEnds(t *testing.T) {
	r := NewRegistry()
	r.Add("A", "10.0.0.1", nullOutbound{})
	if got := r.UpdateHP("A", -1000); got != 0 {
		t.Fatalf("want floor 0, got %d", got)
	}
	if got := r.UpdateHP("A", 1000); got != 100 {
		t.Fatalf("want ceiling 100, got %d", got)
	}
}

func TestRegistry_RecordAttackReceivedIsMultiset(t *testing.T) {
	r := NewRegistry()
	r.Add("B", "10.0.0.2", nullOutbound{})
	r.RecordAttackReceived("B", "10.0.0.1")
	r.RecordAttackReceived("B", "10.0.0.1")

	got := r.AttacksReceived("B")
	if len(got) != 2 {
		t.Fatalf("want multiset length 2 (no dedup), got %v", got)
	}
}

func TestRegistry_ResetAllRoundDataClearsAttacksNotScoreOrHP(t *testing.T) {
	r := NewRegistry()
	r.Add("A", "10.0.0.1", nullOutbound{})
	r.UpdateScore("A", 10)
	r.UpdateHP("A", -10)
	r.RecordAttackReceived("A", "10.0.0.2")

	r.ResetAllRoundData()

	if got := r.AttacksReceived("A"); len(got) != 0 {
		t.Fatalf("want cleared attacks, got %v", got)
	}
	p := r.Lookup("A")
	if p.Score != 10 || p.HP != 90 {
		t.Fatalf("score/hp must survive round reset, got score=%d hp=%d", p.Score, p.HP)
	}
}

func TestRegistry_ByAddressFindsConnectedPlayer(t *testing.T) {
	r := NewRegistry()
	r.Add("A", "10.0.0.1", nullOutbound{})
	p := r.ByAddress("10.0.0.1")
	if p == nil || p.ID != "A" {
		t.Fatalf("want player A, got %v", p)
	}
	if r.ByAddress("10.0.0.9") != nil {
		t.Fatalf("want nil for unknown host")
	}
}
