package orchestrator

import "path/filepath"

// nameAllowed applies the deny-then-allow pattern pair: a name matching any
// block pattern is always excluded; otherwise an empty allow list admits
// everything, and a non-empty one requires a match.
func (o *Orchestrator) nameAllowed(name string) bool {
	for _, pat := range o.block {
		if ok, _ := filepath.Match(pat, name); ok {
			return false
		}
	}
	if len(o.allow) == 0 {
		return true
	}
	for _, pat := range o.allow {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}
