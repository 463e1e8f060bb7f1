package appstate

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Language is cosmetic; it never changes behavior.
type Language string

const (
	LanguagePT Language = "PT"
	LanguageEN Language = "EN"
	LanguageES Language = "ES"
)

var supportedTags = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
	language.Spanish,
}

var languageMatcher = language.NewMatcher(supportedTags)

// ParseLanguage accepts PT, EN or ES in any case.
func ParseLanguage(raw string) (Language, error) {
	switch Language(strings.ToUpper(strings.TrimSpace(raw))) {
	case LanguagePT:
		return LanguagePT, nil
	case LanguageEN:
		return LanguageEN, nil
	case LanguageES:
		return LanguageES, nil
	default:
		return "", fmt.Errorf("unsupported language %q", raw)
	}
}

// NegotiateLanguage picks a UI language from an Accept-Language header,
// defaulting to PT.
func NegotiateLanguage(acceptLanguage string) Language {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return LanguagePT
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return LanguagePT
	}
	switch idx {
	case 1:
		return LanguageEN
	case 2:
		return LanguageES
	default:
		return LanguagePT
	}
}

// ViewMode is the active top-level panel.
type ViewMode string

const (
	ViewLocked    ViewMode = "LOCKED"
	ViewVote      ViewMode = "VOTE"
	ViewDashboard ViewMode = "DASHBOARD"
	ViewChat      ViewMode = "CHAT"
	ViewLive      ViewMode = "LIVE"
	ViewVeo       ViewMode = "VEO"
	ViewImage     ViewMode = "IMAGE"
)

// ParseViewMode accepts one of the six selectable panels. LOCKED is not
// selectable.
func ParseViewMode(raw string) (ViewMode, error) {
	v := ViewMode(strings.ToUpper(strings.TrimSpace(raw)))
	switch v {
	case ViewVote, ViewDashboard, ViewChat, ViewLive, ViewVeo, ViewImage:
		return v, nil
	default:
		return "", fmt.Errorf("unknown view %q", raw)
	}
}

// Session is the user's state for one page session.
type Session struct {
	Authenticated    bool     `json:"is_authenticated"`
	RewardPoints     int      `json:"reward_points"`
	VotedArtistIDs   []int    `json:"voted_artist_ids"`
	Language         Language `json:"language"`
	ProfilePanelOpen bool     `json:"profile_panel_open"`
}

func newSession(lang Language) Session {
	if lang == "" {
		lang = LanguagePT
	}
	return Session{
		VotedArtistIDs: []int{},
		Language:       lang,
	}
}

func (s Session) clone() Session {
	s.VotedArtistIDs = append([]int{}, s.VotedArtistIDs...)
	return s
}
