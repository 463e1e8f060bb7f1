package appstate

import "github.com/vango-go/vibevote/pkg/core"

// Navigate switches to an explicitly selected panel.
func (a *App) Navigate(to ViewMode) error {
	to, err := ParseViewMode(string(to))
	if err != nil {
		return core.NewInvalidRequestErrorWithParam(err.Error(), "view")
	}

	a.mu.Lock()
	if !a.session.Authenticated {
		a.mu.Unlock()
		return errLocked
	}
	prev := a.view
	a.view = to
	a.mu.Unlock()

	if prev != to {
		a.notify(Transition{From: prev, To: to, Reason: "navigate"})
	}
	return nil
}
