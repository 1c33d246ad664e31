package verify

import "sync"

// inflightGuard is the lightweight pre-ledger dedup: near-simultaneous
// requests for the same signature or source asset fail fast with an
// "already processing" conflict instead of both paying for upload and
// chain work before serializing at the ledger.
type inflightGuard struct {
	mu         sync.Mutex
	signatures map[string]struct{}
	sources    map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{
		signatures: map[string]struct{}{},
		sources:    map[string]struct{}{},
	}
}

// enter reserves both identities atomically. ok=false means another request
// holds one of them right now.
func (g *inflightGuard) enter(signature, source string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.signatures[signature]; busy {
		return false
	}
	if _, busy := g.sources[source]; busy {
		return false
	}
	g.signatures[signature] = struct{}{}
	g.sources[source] = struct{}{}
	return true
}

func (g *inflightGuard) leave(signature, source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.signatures, signature)
	delete(g.sources, source)
}
