package appstate

import (
	"fmt"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/catalog"
)

// ErrOutOfRange is returned when a vote is cast after the whole catalog has
// been voted on. Callers must not vote past completion.
var ErrOutOfRange = &core.Error{
	Type:    core.ErrProgression,
	Message: "voting is already complete",
	Code:    "voting_complete",
}

// VoteResult describes the effect of one vote.
type VoteResult struct {
	Artist        catalog.Artist `json:"artist"`
	Liked         bool           `json:"liked"`
	Awarded       int            `json:"awarded"`
	Completed     bool           `json:"completed"`
	AutoNavigated bool           `json:"auto_navigated"`
}

// Progress is the user's position in the catalog.
type Progress struct {
	Index    int     `json:"index"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

func progressAt(idx, total int) Progress {
	p := Progress{Index: idx, Total: total, Fraction: 1}
	if total > 0 {
		p.Fraction = float64(idx+1) / float64(total)
		if p.Fraction > 1 {
			p.Fraction = 1
		}
	}
	return p
}

// CastVote records a decision on the current artist. A like earns the award and
// raises the reward toast; a skip only advances. The last vote completes the
// progression and, if the voting view is active, moves to the dashboard.
func (a *App) CastVote(liked bool) (VoteResult, error) {
	a.mu.Lock()
	if !a.session.Authenticated {
		a.mu.Unlock()
		return VoteResult{}, errLocked
	}
	idx := len(a.session.VotedArtistIDs)
	artist, ok := a.catalog.At(idx)
	if !ok {
		a.mu.Unlock()
		return VoteResult{}, ErrOutOfRange
	}

	res := VoteResult{Artist: artist, Liked: liked}
	if liked {
		a.session.RewardPoints += a.award
		res.Awarded = a.award
	}
	a.session.VotedArtistIDs = append(a.session.VotedArtistIDs, artist.ID)

	var tr *Transition
	if len(a.session.VotedArtistIDs) == a.catalog.Len() {
		res.Completed = true
		if a.view == ViewVote {
			a.view = ViewDashboard
			res.AutoNavigated = true
			tr = &Transition{From: ViewVote, To: ViewDashboard, Reason: "auto"}
		}
	}
	// Shown under the lock so a concurrent logout clears it.
	if liked {
		a.toast.Show(fmt.Sprintf("+%d XP", res.Awarded))
	}
	a.mu.Unlock()

	if tr != nil {
		a.notify(*tr)
	} else {
		a.changed()
	}
	return res, nil
}
