package session

// DefaultMaxPerUser is the session cap used when none is configured.
const DefaultMaxPerUser = 5

// Registry enforces the per-user session cap. It is stateless; every method works on
// the list the caller fetched from storage.
type Registry struct {
	maxPerUser int
}

// Registration is the outcome of Register.
type Registration struct {
	// Sessions is the resulting list, oldest insertion first.
	Sessions []Session
	// Session is the stored session: the existing one when New is false.
	Session Session
	// Evicted lists sessions removed to make room, in eviction order.
	Evicted []Session
	New     bool
}

// NewRegistry returns a Registry capping users at maxPerUser sessions.
func NewRegistry(maxPerUser int) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &Registry{maxPerUser: maxPerUser}
}

// MaxPerUser returns the configured cap.
func (r *Registry) MaxPerUser() int {
	return r.maxPerUser
}

// Register adds s to list unless a session with the same hash already exists. Before
// appending, the least recently used sessions are evicted until the list fits the cap.
// Ties on LastUsedAt are broken by insertion order.
//
// list must be an authoritative copy fetched just before the call.
func (r *Registry) Register(list []Session, s Session) Registration {
	if existing, ok := FindByHash(list, s.Hash); ok {
		return Registration{Sessions: list, Session: existing}
	}

	out := make([]Session, len(list), len(list)+1)
	copy(out, list)

	var evicted []Session
	for len(out)+1 > r.maxPerUser && len(out) > 0 {
		idx := oldest(out)
		evicted = append(evicted, out[idx])
		out = append(out[:idx], out[idx+1:]...)
	}
	out = append(out, s)

	return Registration{Sessions: out, Session: s, Evicted: evicted, New: true}
}

// FindByHash returns the session with the given hash.
func FindByHash(list []Session, hash string) (Session, bool) {
	if hash == "" {
		return Session{}, false
	}
	for _, s := range list {
		if s.Hash == hash {
			return s, true
		}
	}
	return Session{}, false
}

// DeleteByHash returns list without the session identified by hash. Deleting an absent
// hash returns an equal list.
func DeleteByHash(list []Session, hash string) []Session {
	out := make([]Session, 0, len(list))
	for _, s := range list {
		if s.Hash != hash {
			out = append(out, s)
		}
	}
	return out
}

func oldest(list []Session) int {
	idx := 0
	for i := 1; i < len(list); i++ {
		if list[i].LastUsedAt.Before(list[idx].LastUsedAt) {
			idx = i
		}
	}
	return idx
}
