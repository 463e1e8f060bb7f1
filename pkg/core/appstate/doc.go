// Package appstate is the per-client application controller for the festival app.
//
// A single App owns the user session, the active view and the transient notices
// (reward toast, login error). Panels never touch these fields directly; they call
// the App's methods, which apply each mutation under one lock so the controller
// behaves like a single-threaded event loop.
//
// # Navigation
//
//	LOCKED ──login──▶ VOTE ◀──▶ DASHBOARD ◀──▶ CHAT ◀──▶ LIVE ◀──▶ VEO ◀──▶ IMAGE
//	   ▲                 │ (auto, once, on last vote)
//	   │                 ▼
//	   └────logout─── any authenticated view
//
// Every authenticated view can reach every other one by explicit navigation. The
// only automatic edge is VOTE→DASHBOARD, fired when the final vote is cast while
// the voting view is active. Logout is destructive: the whole session resets.
package appstate
