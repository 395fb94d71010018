package value

import "fmt"

// CastDistance computes the cast-distance metric used for overload
// resolution (spec.md §4.4). Smaller is better; -1 means "not
// castable". The rules, in the order spec.md lists them:
//
//   - same type: 0
//   - integer -> double: 1
//   - integer or double -> complex: 2
//   - list<void> <-> list<T>, map<void,void> <-> map<K,V>: 2
//   - list<T> -> list<generic>, map key/value -> generic: 10 per generic position
//   - function -> function: arity must match; sum of per-argument distances
//   - anything -> generic: 10
func CastDistance(from, to *Type) int {
	if TypesEqual(from, to) {
		return 0
	}
	if to == nil || from == nil {
		return -1
	}

	if to.Kind == KindGeneric {
		return 10
	}

	switch from.Kind {
	case KindInt:
		switch to.Kind {
		case KindDouble:
			return 1
		case KindComplex:
			return 2
		}
		return -1
	case KindDouble:
		if to.Kind == KindComplex {
			return 2
		}
		return -1
	}

	if from.Kind == KindList && to.Kind == KindList {
		if from.IsVoidList() || to.IsVoidList() {
			return 2
		}
		if to.Elem.Kind == KindGeneric {
			return 10
		}
		inner := CastDistance(from.Elem, to.Elem)
		if inner < 0 {
			return -1
		}
		return inner
	}

	if from.Kind == KindMap && to.Kind == KindMap {
		if from.IsVoidMap() || to.IsVoidMap() {
			return 2
		}
		dist := 0
		if to.Key.Kind == KindGeneric {
			dist += 10
		} else if d := CastDistance(from.Key, to.Key); d < 0 {
			return -1
		} else {
			dist += d
		}
		if to.Val.Kind == KindGeneric {
			dist += 10
		} else if d := CastDistance(from.Val, to.Val); d < 0 {
			return -1
		} else {
			dist += d
		}
		return dist
	}

	if from.Kind == KindFunction && to.Kind == KindFunction {
		if len(from.Params) != len(to.Params) {
			return -1
		}
		if CastDistance(from.Ret, to.Ret) < 0 {
			return -1
		}
		sum := 0
		for i := range from.Params {
			d := CastDistance(from.Params[i], to.Params[i])
			if d < 0 {
				return -1
			}
			sum += d
		}
		return sum
	}

	return -1
}

// Castable reports whether a value of type from can be cast to type to.
func Castable(from, to *Type) bool {
	return CastDistance(from, to) >= 0
}

// Cast converts v to type to, following the same rules CastDistance
// scores. It is the evaluator's one call site for actually applying an
// argument/assignment cast once overload resolution has picked a
// candidate (spec.md §4.6 function-call step 4).
func Cast(v Value, to *Type) (Value, error) {
	if TypesEqual(v.Type(), to) {
		return v, nil
	}
	if CastDistance(v.Type(), to) < 0 {
		return Value{}, fmt.Errorf("cannot cast %s to %s", v.Type(), to)
	}

	switch {
	case to.Kind == KindGeneric:
		return v, nil
	case v.Type().Kind == KindInt && to.Kind == KindDouble:
		return NewDouble(float64(v.AsInt())), nil
	case v.Type().Kind == KindInt && to.Kind == KindComplex:
		return NewComplex(complex(float64(v.AsInt()), 0)), nil
	case v.Type().Kind == KindDouble && to.Kind == KindComplex:
		return NewComplex(complex(v.AsDouble(), 0)), nil
	case v.Type().Kind == KindList && to.Kind == KindList:
		if v.Type().IsVoidList() {
			return NewList(to.Elem, nil), nil
		}
		if to.IsVoidList() {
			return v, nil
		}
		elems := v.AsList()
		out := make([]Value, len(elems))
		for i, e := range elems {
			c, err := Cast(e, to.Elem)
			if err != nil {
				return Value{}, err
			}
			out[i] = c
		}
		return NewList(to.Elem, out), nil
	case v.Type().Kind == KindMap && to.Kind == KindMap:
		if v.Type().IsVoidMap() {
			return NewMap(to.Key, to.Val, nil), nil
		}
		if to.IsVoidMap() {
			return v, nil
		}
		entries := v.AsMap()
		out := make([]MapEntry, len(entries))
		for i, e := range entries {
			k, err := Cast(e.Key, to.Key)
			if err != nil {
				return Value{}, err
			}
			val, err := Cast(e.Val, to.Val)
			if err != nil {
				return Value{}, err
			}
			out[i] = MapEntry{Key: k, Val: val}
		}
		return NewMap(to.Key, to.Val, out), nil
	}

	return v, nil
}
