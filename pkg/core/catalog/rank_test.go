package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ids(r []Ranked) []int {
	out := make([]int, len(r))
	for i := range r {
		out[i] = r[i].ID
	}
	return out
}

func TestRank_AlreadyDescendingKeepsCatalogOrder(t *testing.T) {
	c := Default()
	ranked := Rank(c.Artists())
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5, 6, 7, 8}, ids(ranked)); diff != "" {
		t.Fatalf("rank order mismatch (-want +got):\n%s", diff)
	}
	for i, r := range ranked {
		if r.Rank != i+1 {
			t.Fatalf("ranked[%d].Rank = %d", i, r.Rank)
		}
	}
}

func TestRank_StableOnTies(t *testing.T) {
	in := []Artist{
		{ID: 10, ApprovalScore: 50},
		{ID: 11, ApprovalScore: 80},
		{ID: 12, ApprovalScore: 50},
		{ID: 13, ApprovalScore: 80},
		{ID: 14, ApprovalScore: 50},
	}
	got := ids(Rank(in))
	if diff := cmp.Diff([]int{11, 13, 10, 12, 14}, got); diff != "" {
		t.Fatalf("tie order mismatch (-want +got):\n%s", diff)
	}
	if in[0].ID != 10 || in[1].ID != 11 {
		t.Fatalf("input was mutated: %+v", in)
	}
}

func TestRank_Empty(t *testing.T) {
	if got := Rank(nil); len(got) != 0 {
		t.Fatalf("Rank(nil) = %v", got)
	}
}

func TestRewardsFor(t *testing.T) {
	got := RewardsFor(Default().Rewards(), 300)
	want := map[string]bool{"Upgrade VIP": false, "Drink Grátis": true, "Camiseta 2026": true}
	for _, r := range got {
		if r.Affordable != want[r.Title] {
			t.Fatalf("%s affordable=%v, want %v", r.Title, r.Affordable, want[r.Title])
		}
	}
}
