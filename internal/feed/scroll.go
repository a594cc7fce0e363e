package feed

// ScrollState tracks where the viewport sits relative to the newest message.
type ScrollState int

const (
	PinnedToBottom ScrollState = iota
	ScrolledUp
	ScrolledUpWithUnread
)

func (s ScrollState) String() string {
	switch s {
	case PinnedToBottom:
		return "pinnedToBottom"
	case ScrolledUp:
		return "scrolledUp"
	case ScrolledUpWithUnread:
		return "scrolledUpWithUnread"
	}
	return "unknown"
}

// NearBottomThreshold is the distance from the bottom, in viewport units,
// under which the view counts as pinned.
const NearBottomThreshold = 100.0

type Viewport struct {
	ScrollTop    float64 `json:"scrollTop"`
	ScrollHeight float64 `json:"scrollHeight"`
	ClientHeight float64 `json:"clientHeight"`
}

func (v Viewport) DistanceFromBottom() float64 {
	return v.ScrollHeight - v.ScrollTop - v.ClientHeight
}

// ScrollTracker decides whether incoming messages auto-scroll the view or
// raise the unread indicator. A reader scrolled up into history is never
// yanked to the bottom by background activity.
type ScrollTracker struct {
	state ScrollState
}

func NewScrollTracker() *ScrollTracker {
	return &ScrollTracker{state: PinnedToBottom}
}

func (t *ScrollTracker) State() ScrollState {
	return t.state
}

func (t *ScrollTracker) Unread() bool {
	return t.state == ScrolledUpWithUnread
}

// Reset returns to the initial pinned state, used on conversation open.
func (t *ScrollTracker) Reset() {
	t.state = PinnedToBottom
}

// OnViewportScroll transitions on a viewport scroll event. Scrolling near the
// bottom pins the view and clears unread; scrolling away never sets unread on
// its own.
func (t *ScrollTracker) OnViewportScroll(v Viewport) {
	if v.DistanceFromBottom() < NearBottomThreshold {
		t.state = PinnedToBottom
		return
	}
	if t.state == PinnedToBottom {
		t.state = ScrolledUp
	}
}

// OnAdded transitions on newly reconciled messages and reports whether the
// view should scroll to the newest one. Catch-up batches never raise unread.
func (t *ScrollTracker) OnAdded(catchUp bool) bool {
	if t.state == PinnedToBottom {
		return true
	}
	if !catchUp {
		t.state = ScrolledUpWithUnread
	}
	return false
}

// OnUserAction handles an explicit action (send, click-to-bottom,
// conversation switch): force pinned, clear unread, scroll to newest.
func (t *ScrollTracker) OnUserAction() bool {
	t.state = PinnedToBottom
	return true
}
