package feed

import (
	"sort"
	"time"

	"parley/internal/entity"
)

// Reconciler maintains the canonical ordered message list for one
// subscription lifetime. It is not safe for concurrent use; the engine owns
// it from a single goroutine.
type Reconciler struct {
	userId   string
	cutoff   time.Time
	bounded  bool
	messages []entity.Message
	ids      map[string]bool
}

func NewReconciler(userId string) *Reconciler {
	return &Reconciler{
		userId: userId,
		ids:    make(map[string]bool),
	}
}

// Reset discards the list on subscription teardown.
func (r *Reconciler) Reset() {
	r.messages = nil
	r.ids = make(map[string]bool)
	r.cutoff = time.Time{}
	r.bounded = false
}

// SetCutoff records the subscription's cleared-before bound. The stream is
// already filtered by it; the reconciler re-checks so a misbehaving stream
// can never leak cleared history.
func (r *Reconciler) SetCutoff(cutoff time.Time, bounded bool) {
	r.cutoff = cutoff
	r.bounded = bounded
}

// Apply merges one change batch and returns how many genuinely new visible
// messages were added.
func (r *Reconciler) Apply(batch entity.ChangeBatch) int {
	added := 0
	for _, change := range batch.Changes {
		switch change.Kind {
		case entity.ChangeAdded:
			if r.insert(change.Message) && !change.Message.HiddenForUser(r.userId) {
				added++
			}
		case entity.ChangeModified:
			r.update(change.Message)
		case entity.ChangeRemoved:
			r.remove(change.Message.Id)
		}
	}
	return added
}

// AppendEcho adds an optimistic local echo; it orders after every committed
// message until the authoritative version replaces it.
func (r *Reconciler) AppendEcho(echo entity.Message) {
	if r.ids[echo.Id] {
		return
	}
	r.insertOrdered(echo)
}

// ResolveEcho swaps the echo for the committed message once the submission
// round trip resolves. If the stream delivered the committed version first,
// the echo is simply dropped.
func (r *Reconciler) ResolveEcho(provisionalId string, committed entity.Message) {
	if r.ids[committed.Id] {
		r.remove(provisionalId)
		return
	}
	if !r.ids[provisionalId] {
		return
	}
	r.remove(provisionalId)
	if r.belowCutoff(committed) {
		return
	}
	r.insertOrdered(committed)
}

// FailEcho marks the echo failed, keeping its text visible so the user can
// retry. Reports whether an echo was found.
func (r *Reconciler) FailEcho(provisionalId string) bool {
	for i := range r.messages {
		if r.messages[i].Id == provisionalId && r.messages[i].Pending {
			r.messages[i].Failed = true
			return true
		}
	}
	return false
}

// Visible returns the ordered messages not soft-deleted for this user.
func (r *Reconciler) Visible() []entity.Message {
	out := make([]entity.Message, 0, len(r.messages))
	for _, m := range r.messages {
		if m.HiddenForUser(r.userId) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *Reconciler) belowCutoff(m entity.Message) bool {
	return r.bounded && !m.Pending && !m.CreatedAt.After(r.cutoff)
}

// insert returns true when the message is genuinely new to the list.
func (r *Reconciler) insert(m entity.Message) bool {
	if m.Id == "" || r.belowCutoff(m) {
		return false
	}
	if m.ProvisionalId != "" && r.ids[m.ProvisionalId] {
		// Committed version of an echo this view rendered optimistically.
		r.remove(m.ProvisionalId)
		if !r.ids[m.Id] {
			r.insertOrdered(m)
		}
		return false
	}
	if r.ids[m.Id] {
		r.update(m)
		return false
	}
	r.insertOrdered(m)
	return true
}

func (r *Reconciler) update(m entity.Message) {
	// An empty id means the stream could not resolve the document.
	if m.Id == "" || r.belowCutoff(m) {
		return
	}
	if !r.ids[m.Id] {
		// Unknown to this subscription; upsert for robustness.
		r.insertOrdered(m)
		return
	}
	for i := range r.messages {
		if r.messages[i].Id != m.Id {
			continue
		}
		if r.messages[i].CreatedAt.Equal(m.CreatedAt) && r.messages[i].Pending == m.Pending {
			r.messages[i] = m
		} else {
			// Order key changed; reposition.
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			r.insertOrdered(m)
		}
		return
	}
}

func (r *Reconciler) remove(id string) {
	if !r.ids[id] {
		return
	}
	delete(r.ids, id)
	for i := range r.messages {
		if r.messages[i].Id == id {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return
		}
	}
}

func (r *Reconciler) insertOrdered(m entity.Message) {
	i := sort.Search(len(r.messages), func(i int) bool {
		return m.Before(r.messages[i])
	})
	r.messages = append(r.messages, entity.Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = m
	r.ids[m.Id] = true
}
