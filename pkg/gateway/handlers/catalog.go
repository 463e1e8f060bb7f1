package handlers

import (
	"net/http"

	"github.com/vango-go/vibevote/pkg/core/catalog"
	"github.com/vango-go/vibevote/pkg/gateway/mw"
	"github.com/vango-go/vibevote/pkg/gateway/sessions"
)

// CatalogHandler serves the read-only lineup, the dashboard leaderboard and
// the rewards list.
type CatalogHandler struct {
	Catalog  *catalog.Catalog
	Sessions *sessions.Registry
}

type catalogResponse struct {
	HeroImage string           `json:"hero_image"`
	Artists   []catalog.Artist `json:"artists"`
}

func (h CatalogHandler) Lineup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		HeroImage: h.Catalog.HeroImage(),
		Artists:   h.Catalog.Artists(),
	})
}

func (h CatalogHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]catalog.Ranked{
		"ranking": catalog.Rank(h.Catalog.Artists()),
	})
}

type rewardsResponse struct {
	Points  int                    `json:"points"`
	Rewards []catalog.RewardStatus `json:"rewards"`
}

// Rewards reports affordability against the caller's balance. Without a
// session the balance is zero.
func (h CatalogHandler) Rewards(w http.ResponseWriter, r *http.Request) {
	points := 0
	if mw.SessionIDFrom(r) != "" {
		sess, ok := resolveSession(h.Sessions, w, r)
		if !ok {
			return
		}
		points = sess.App.Snapshot().Session.RewardPoints
	}
	writeJSON(w, http.StatusOK, rewardsResponse{
		Points:  points,
		Rewards: catalog.RewardsFor(h.Catalog.Rewards(), points),
	})
}
