package appstate

import (
	"context"
	"sync"
	"time"

	"github.com/vango-go/vibevote/pkg/core"
	"github.com/vango-go/vibevote/pkg/core/catalog"
)

const (
	DefaultAward              = 50
	DefaultToastDuration      = 2000 * time.Millisecond
	DefaultLoginErrorDuration = 2000 * time.Millisecond
	DefaultLoginDelay         = 1500 * time.Millisecond
)

// Options configures an App. Zero values select the defaults above.
type Options struct {
	Catalog            *catalog.Catalog
	Clock              Clock
	Language           Language
	Award              int
	ToastDuration      time.Duration
	LoginErrorDuration time.Duration
	// LoginDelay simulates code validation. Negative disables it.
	LoginDelay time.Duration
}

// Transition describes a view change. Reason is one of "login", "navigate",
// "auto" or "logout".
type Transition struct {
	From   ViewMode
	To     ViewMode
	Reason string
}

// App is the controller for one client session.
type App struct {
	catalog    *catalog.Catalog
	clock      Clock
	award      int
	loginDelay time.Duration
	language   Language

	mu         sync.Mutex
	session    Session
	view       ViewMode
	validating bool
	loginGen   uint64
	listeners  []func(Transition)
	watchers   []func()

	toast      *Flash
	loginError *Flash
}

func New(opts Options) *App {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Award <= 0 {
		opts.Award = DefaultAward
	}
	if opts.ToastDuration <= 0 {
		opts.ToastDuration = DefaultToastDuration
	}
	if opts.LoginErrorDuration <= 0 {
		opts.LoginErrorDuration = DefaultLoginErrorDuration
	}
	if opts.LoginDelay == 0 {
		opts.LoginDelay = DefaultLoginDelay
	}
	if opts.Language == "" {
		opts.Language = LanguagePT
	}
	a := &App{
		catalog:    opts.Catalog,
		clock:      opts.Clock,
		award:      opts.Award,
		loginDelay: opts.LoginDelay,
		language:   opts.Language,
		session:    newSession(opts.Language),
		view:       ViewLocked,
		toast:      NewFlash(opts.Clock, opts.ToastDuration),
		loginError: NewFlash(opts.Clock, opts.LoginErrorDuration),
	}
	a.toast.onExpire = a.changed
	a.loginError.onExpire = a.changed
	return a
}

// OnTransition registers fn to run after every view change, outside the lock.
func (a *App) OnTransition(fn func(Transition)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

func (a *App) notify(t Transition) {
	a.mu.Lock()
	listeners := append([]func(Transition){}, a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(t)
	}
	a.changed()
}

// OnChange registers fn to run after anything visible in Snapshot may have
// changed, including timer-driven changes such as a toast hiding itself.
// Calls are made outside the lock and may be spurious.
func (a *App) OnChange(fn func()) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.watchers = append(a.watchers, fn)
	a.mu.Unlock()
}

func (a *App) changed() {
	a.mu.Lock()
	watchers := append([]func(){}, a.watchers...)
	a.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

// Login checks code and, on success, unlocks the app after the validation delay.
// The call waits for the unlock or for ctx; a canceled ctx does not abort the
// pending unlock.
func (a *App) Login(ctx context.Context, code string) (bool, error) {
	a.mu.Lock()
	if a.session.Authenticated {
		a.mu.Unlock()
		return true, nil
	}
	if a.validating {
		a.mu.Unlock()
		return false, core.NewConflictError("login is already being validated", "login_in_progress")
	}
	if !AttemptLogin(code) {
		a.mu.Unlock()
		a.loginError.Show("invalid access code")
		a.changed()
		return false, nil
	}
	a.validating = true
	a.loginGen++
	gen := a.loginGen
	a.mu.Unlock()

	a.loginError.Dismiss()
	a.changed()

	if a.loginDelay < 0 {
		if !a.completeLogin(gen) {
			return false, errLoginCancelled
		}
		return true, nil
	}

	done := make(chan bool, 1)
	a.clock.AfterFunc(a.loginDelay, func() {
		done <- a.completeLogin(gen)
	})
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case applied := <-done:
		if !applied {
			return false, errLoginCancelled
		}
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// completeLogin unlocks the app unless a logout superseded attempt gen.
func (a *App) completeLogin(gen uint64) bool {
	a.mu.Lock()
	if gen != a.loginGen || !a.validating {
		a.mu.Unlock()
		return false
	}
	a.validating = false
	a.session.Authenticated = true
	prev := a.view
	a.view = ViewVote
	a.mu.Unlock()

	a.notify(Transition{From: prev, To: ViewVote, Reason: "login"})
	return true
}

// Logout returns to LOCKED and resets every session field. It is safe to call
// from any state.
func (a *App) Logout() {
	a.mu.Lock()
	prev := a.view
	a.session = newSession(a.language)
	a.view = ViewLocked
	a.validating = false
	a.loginGen++
	a.mu.Unlock()

	a.toast.Reset()
	a.loginError.Reset()

	if prev != ViewLocked {
		a.notify(Transition{From: prev, To: ViewLocked, Reason: "logout"})
		return
	}
	a.changed()
}

// ToggleProfile flips the dashboard profile overlay.
func (a *App) ToggleProfile() (bool, error) {
	a.mu.Lock()
	if !a.session.Authenticated {
		a.mu.Unlock()
		return false, errLocked
	}
	a.session.ProfilePanelOpen = !a.session.ProfilePanelOpen
	open := a.session.ProfilePanelOpen
	a.mu.Unlock()

	a.changed()
	return open, nil
}

func (a *App) SetLanguage(lang Language) error {
	lang, err := ParseLanguage(string(lang))
	if err != nil {
		return core.NewInvalidRequestErrorWithParam(err.Error(), "language")
	}
	a.mu.Lock()
	a.session.Language = lang
	a.mu.Unlock()
	a.changed()
	return nil
}

// DismissToast hides the reward toast early.
func (a *App) DismissToast() {
	a.toast.Dismiss()
	a.changed()
}

// Close cancels pending notice timers. The App stays readable.
func (a *App) Close() {
	a.toast.Dismiss()
	a.loginError.Dismiss()
}

// State is a point-in-time copy of everything a client renders.
type State struct {
	View           ViewMode        `json:"view"`
	Session        Session         `json:"session"`
	Validating     bool            `json:"validating"`
	LoginError     bool            `json:"login_error"`
	Toast          Notice          `json:"toast"`
	CurrentArtist  *catalog.Artist `json:"current_artist"`
	Progress       Progress        `json:"progress"`
	VotingComplete bool            `json:"voting_complete"`
}

func (a *App) Snapshot() State {
	a.mu.Lock()
	st := State{
		View:       a.view,
		Session:    a.session.clone(),
		Validating: a.validating,
	}
	idx := len(a.session.VotedArtistIDs)
	a.mu.Unlock()

	if artist, ok := a.catalog.At(idx); ok {
		st.CurrentArtist = &artist
	}
	st.Progress = progressAt(idx, a.catalog.Len())
	st.VotingComplete = idx >= a.catalog.Len()
	st.Toast = a.toast.Current()
	st.LoginError = a.loginError.Current().Visible
	return st
}

// Authenticated reports whether the gate has been passed.
func (a *App) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Authenticated
}

func (a *App) View() ViewMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

var (
	errLocked         = core.NewAuthenticationError("app is locked; log in first")
	errLoginCancelled = core.NewConflictError("login was cancelled by a logout", "login_cancelled")
)
