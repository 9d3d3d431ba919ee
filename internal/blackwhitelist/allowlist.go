package blackwhitelist

import "strings"

// Allowlist 豁免的进程名集合 (大小写不敏感)
type Allowlist struct {
	names map[string]struct{}
}

func NewAllowlist(names ...string) *Allowlist {
	a := &Allowlist{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		a.names[strings.ToLower(n)] = struct{}{}
	}
	return a
}

// DefaultAllowlist 只放行 Notepad
func DefaultAllowlist() *Allowlist {
	return NewAllowlist("Notepad")
}

// IsExempt 空进程名永不豁免
func (a *Allowlist) IsExempt(processName string) bool {
	if a == nil || processName == "" {
		return false
	}
	_, ok := a.names[strings.ToLower(processName)]
	return ok
}
