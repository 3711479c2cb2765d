package typeinfer

// Unifier is a Robinson-style union-find unifier over Type (§4.5). It
// owns the substitution for every Var minted during inference; Values
// unify structurally, Associated selectors resolve once their target is
// known, and an occurs check rejects a variable unifying with a type
// that contains itself.
type Unifier struct {
	next  TypeVar
	subst map[TypeVar]*Type
}

// NewUnifier returns an empty unifier.
func NewUnifier() *Unifier {
	return &Unifier{subst: make(map[TypeVar]*Type)}
}

// Fresh mints a new, unbound type variable.
func (u *Unifier) Fresh() *Type {
	v := u.next
	u.next++
	return &Type{Tag: TagVar, Var: v}
}

// Resolve follows a Var's binding chain and an Associated's target
// pointer to the furthest-known type. It never mutates and does no
// path compression.
func (u *Unifier) Resolve(t *Type) *Type {
	for t != nil {
		if t.Tag == TagVar {
			if bound, ok := u.subst[t.Var]; ok {
				t = bound
				continue
			}
		}
		if t.Tag == TagAssociated && t.Assoc.Target != nil {
			t = t.Assoc.Target
			continue
		}
		return t
	}
	return t
}

// Unify unifies a and b, recording any new variable bindings. Returns a
// *TypeError on mismatch; callers should treat any error as fatal to the
// enclosing statement's type-checking (§4.5 "explicit failure").
func (u *Unifier) Unify(a, b *Type) error {
	a = u.Resolve(a)
	b = u.Resolve(b)

	switch {
	case a.Tag == TagVar && b.Tag == TagVar && a.Var == b.Var:
		return nil
	case a.Tag == TagVar:
		return u.bindVar(a.Var, b)
	case b.Tag == TagVar:
		return u.bindVar(b.Var, a)
	case a.Tag == TagAssociated:
		a.Assoc.Target = b
		return nil
	case b.Tag == TagAssociated:
		b.Assoc.Target = a
		return nil
	default:
		return u.unifyValues(a.Value, b.Value)
	}
}

func (u *Unifier) bindVar(v TypeVar, t *Type) error {
	if t.Tag == TagVar && t.Var == v {
		return nil
	}
	if occurs(u, v, t) {
		return newOccurs("type variable ?%d occurs in %s", v, t)
	}
	u.subst[v] = t
	return nil
}

func occurs(u *Unifier, v TypeVar, t *Type) bool {
	t = u.Resolve(t)
	switch t.Tag {
	case TagVar:
		return t.Var == v
	case TagAssociated:
		return false
	case TagValue:
		switch t.Value.Kind {
		case KindArray, KindSetOf:
			return occurs(u, v, t.Value.Elem)
		case KindProjection:
			for _, c := range t.Value.Columns {
				if occurs(u, v, c.Type) {
					return true
				}
			}
		}
	}
	return false
}

func (u *Unifier) unifyValues(a, b *Value) error {
	if a.Kind != b.Kind {
		return newMismatch("cannot unify %s with %s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindNative:
		return nil
	case KindEql:
		if a.Eql.Table != b.Eql.Table || a.Eql.Column != b.Eql.Column {
			return newMismatch("encrypted column %s.%s does not unify with encrypted column %s.%s",
				a.Eql.Table, a.Eql.Column, b.Eql.Table, b.Eql.Column)
		}
		return nil
	case KindArray, KindSetOf:
		return u.Unify(a.Elem, b.Elem)
	case KindProjection:
		if len(a.Columns) != len(b.Columns) {
			return newArity("projection arity mismatch: %d vs %d columns", len(a.Columns), len(b.Columns))
		}
		for i := range a.Columns {
			if err := u.Unify(a.Columns[i].Type, b.Columns[i].Type); err != nil {
				return err
			}
		}
		return nil
	default:
		return newUnsupported("unknown value kind %s", a.Kind)
	}
}

// CheckComplete verifies every type in types resolves to a Value
// constructor (§4.5 "Completeness check"); a bare Var or unresolved
// Associated left over is ErrIncomplete.
func (u *Unifier) CheckComplete(types []*Type) error {
	for _, t := range types {
		r := u.Resolve(t)
		if r == nil || r.Tag != TagValue {
			return newIncomplete("type did not resolve to a constructor: %s", t)
		}
	}
	return nil
}
