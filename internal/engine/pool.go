package engine

import "github.com/FilamentGames/rulescript/internal/ir"

// Default pool sizes.
const (
	DefaultPlainScopes      = 16
	DefaultRegisteredScopes = 8
	DefaultRegisterCount    = 8
)

// scopePool holds two free lists of execution scopes: plain scopes and
// scopes carrying a register bank. Pools are owned by one Environment and
// used only on the frame goroutine.
type scopePool struct {
	env       *Environment
	registers int
	plain     []*ExecutionScope
	banked    []*ExecutionScope
}

func newScopePool(env *Environment, plain, registered, registers int) *scopePool {
	p := &scopePool{
		env:       env,
		registers: registers,
		plain:     make([]*ExecutionScope, 0, plain),
		banked:    make([]*ExecutionScope, 0, registered),
	}
	for range plain {
		p.plain = append(p.plain, &ExecutionScope{env: env})
	}
	for range registered {
		p.banked = append(p.banked, p.newBanked())
	}
	return p
}

func (p *scopePool) newBanked() *ExecutionScope {
	return &ExecutionScope{env: p.env, registers: make([]ir.Value, p.registers)}
}

// acquire pops a scope from the matching free list. An empty list
// allocates a fresh scope and logs a warning.
func (p *scopePool) acquire(withRegisters bool) *ExecutionScope {
	list, bank := &p.plain, "plain"
	if withRegisters {
		list, bank = &p.banked, "registers"
	}
	if n := len(*list); n > 0 {
		sc := (*list)[n-1]
		(*list)[n-1] = nil
		*list = (*list)[:n-1]
		return sc
	}

	p.env.logger.Warn("execution scope pool exhausted, allocating",
		"bank", bank,
	)
	p.env.metrics.poolGrown.WithLabelValues(bank).Inc()
	if withRegisters {
		return p.newBanked()
	}
	return &ExecutionScope{env: p.env}
}

// release resets sc and returns it to its free list.
func (p *scopePool) release(sc *ExecutionScope) {
	sc.reset()
	if sc.registers != nil {
		p.banked = append(p.banked, sc)
		return
	}
	p.plain = append(p.plain, sc)
}

// Free returns the number of idle plain and register-carrying scopes.
func (p *scopePool) Free() (plain, registered int) {
	return len(p.plain), len(p.banked)
}
