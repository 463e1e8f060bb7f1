package catalog

import "sort"

// Ranked is an artist with its 1-based position on the dashboard leaderboard.
type Ranked struct {
	Rank int `json:"rank"`
	Artist
}

// Rank orders artists by approval score, highest first. Ties keep their
// catalog order. The input slice is not modified.
func Rank(artists []Artist) []Ranked {
	sorted := append([]Artist(nil), artists...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ApprovalScore > sorted[j].ApprovalScore
	})
	out := make([]Ranked, len(sorted))
	for i, a := range sorted {
		out[i] = Ranked{Rank: i + 1, Artist: a}
	}
	return out
}

// RewardStatus pairs a reward with whether the given balance covers it.
type RewardStatus struct {
	Reward
	Affordable bool `json:"affordable"`
}

// RewardsFor reports which rewards a balance of points can redeem.
func RewardsFor(rewards []Reward, points int) []RewardStatus {
	out := make([]RewardStatus, len(rewards))
	for i, r := range rewards {
		out[i] = RewardStatus{Reward: r, Affordable: points >= r.Cost}
	}
	return out
}
