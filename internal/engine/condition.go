package engine

import (
	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
)

// EvaluateCondition resolves the condition's query and compares every
// produced value with the target under the condition's subset. A query
// that produces no values passes.
func (sc *ExecutionScope) EvaluateCondition(c ir.Condition) bool {
	target := sc.resolveFirst(c.Target)
	return applySubset(c.Subset, func(yield func(bool) bool) {
		for v := range sc.ResolveValue(c.Query) {
			if !yield(sc.compare(c.Operator, v, target)) {
				return
			}
		}
	})
}

// EvaluateConditions applies subset across the enabled conditions. With no
// enabled conditions the result is true for every subset.
func (sc *ExecutionScope) EvaluateConditions(conds []ir.Condition, subset ir.Subset) bool {
	return applySubset(subset, func(yield func(bool) bool) {
		for _, c := range conds {
			if !c.Enabled {
				continue
			}
			if !yield(sc.EvaluateCondition(c)) {
				return
			}
		}
	})
}

// applySubset folds results with short circuit: All stops on the first
// false, Any on the first true and None on the first true. An empty
// sequence passes.
func applySubset(subset ir.Subset, results func(yield func(bool) bool)) bool {
	seen := false
	pass := true
	results(func(ok bool) bool {
		seen = true
		switch subset {
		case ir.SubsetAny:
			if ok {
				pass = true
				return false
			}
			pass = false
		case ir.SubsetNone:
			if ok {
				pass = false
				return false
			}
		default:
			if !ok {
				pass = false
				return false
			}
		}
		return true
	})
	if !seen {
		return true
	}
	return pass
}

// compare applies op to a and b. Values of unrelated kinds never compare
// true, whatever the operator.
func (sc *ExecutionScope) compare(op ir.CompareOperator, a, b ir.Value) bool {
	a, b = ir.Normalize(a), ir.Normalize(b)
	ka, kb := a.Kind(), b.Kind()

	if isOrderable(ka) && isOrderable(kb) {
		if ka == ir.KindInt && kb == ir.KindInt {
			return ordered(op, ir.MustInt(a), ir.MustInt(b))
		}
		fa, _ := ir.AsFloat(a)
		fb, _ := ir.AsFloat(b)
		return ordered(op, fa, fb)
	}
	if op.IsOrdered() {
		return false
	}

	var eq bool
	switch {
	case ka == ir.KindEnum || kb == ir.KindEnum:
		ea, errA := ir.AsEnum(a)
		eb, errB := ir.AsEnum(b)
		if errA != nil || errB != nil {
			return false
		}
		eq = ea.Value == eb.Value
	case ka.IsVector() && kb.IsVector():
		va, _ := ir.AsVector4(a)
		vb, _ := ir.AsVector4(b)
		eq = va == vb
	case ka == ir.KindScope || kb == ir.KindScope:
		sa, errA := ir.AsScope(a)
		sb, errB := ir.AsScope(b)
		if errA != nil || errB != nil {
			return false
		}
		eq = entity.Same(sc.ResolveSingle(sa), sc.ResolveSingle(sb))
	case ka != kb:
		return false
	default:
		eq = ir.Equal(a, b)
	}

	if op == ir.OpNotEqual {
		return !eq
	}
	return eq
}

func isOrderable(k ir.Kind) bool {
	return k == ir.KindInt || k == ir.KindFloat
}

func ordered[T int32 | float32](op ir.CompareOperator, a, b T) bool {
	switch op {
	case ir.OpEqual:
		return a == b
	case ir.OpNotEqual:
		return a != b
	case ir.OpLess:
		return a < b
	case ir.OpLessEqual:
		return a <= b
	case ir.OpGreater:
		return a > b
	case ir.OpGreaterEqual:
		return a >= b
	}
	return false
}
