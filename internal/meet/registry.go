package meet

// registry tracks one peerSession per remote participant. It is touched only
// from the session's event loop, so it carries no lock.
type registry struct {
	peers  map[string]*peerSession
	create func(remoteID string) (*peerSession, error)
}

func newRegistry(create func(remoteID string) (*peerSession, error)) *registry {
	return &registry{
		peers:  make(map[string]*peerSession),
		create: create,
	}
}

// getOrCreate returns the existing peer for remoteID, or builds one. The
// second result reports whether the peer already existed, so duplicate
// participant-joined announcements stay idempotent.
func (r *registry) getOrCreate(remoteID string) (*peerSession, bool, error) {
	if p, ok := r.peers[remoteID]; ok {
		return p, true, nil
	}
	p, err := r.create(remoteID)
	if err != nil {
		return nil, false, err
	}
	r.peers[remoteID] = p
	return p, false, nil
}

func (r *registry) get(remoteID string) (*peerSession, bool) {
	p, ok := r.peers[remoteID]
	return p, ok
}

func (r *registry) remove(remoteID string) (*peerSession, bool) {
	p, ok := r.peers[remoteID]
	if ok {
		delete(r.peers, remoteID)
	}
	return p, ok
}

func (r *registry) forEach(fn func(remoteID string, p *peerSession)) {
	for id, p := range r.peers {
		fn(id, p)
	}
}

func (r *registry) closeAll() {
	for id, p := range r.peers {
		p.close()
		delete(r.peers, id)
	}
}

func (r *registry) len() int { return len(r.peers) }
