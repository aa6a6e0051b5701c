package olap

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnPredicate is a decidable constraint over one column's values.
type ColumnPredicate interface {
	Evaluate(v Value) bool
	MightIntersect(other ColumnPredicate) bool
	Minus(other ColumnPredicate) ColumnPredicate
	EqualConstraint(other ColumnPredicate) bool
	Or(other ColumnPredicate) ColumnPredicate
	And(other ColumnPredicate) ColumnPredicate
	// ValueSet returns the enumerable set of accepted values and true, or
	// (nil, false) when the predicate is not a finite enumeration (e.g.
	// LiteralTrue, or a member predicate over an unbounded hierarchy level).
	ValueSet() (map[Value]struct{}, bool)
	String() string
}

// LiteralTrue accepts every value.
type LiteralTrue struct{}

func (LiteralTrue) Evaluate(Value) bool                       { return true }
func (LiteralTrue) MightIntersect(ColumnPredicate) bool        { return true }
func (LiteralTrue) Minus(other ColumnPredicate) ColumnPredicate {
	if _, ok := other.(LiteralTrue); ok {
		return LiteralFalse{}
	}
	// TRUE minus X is not generally expressible as a finite enumeration;
	// conservatively keep TRUE (flush treats this as "cannot shrink safely").
	return LiteralTrue{}
}
func (LiteralTrue) EqualConstraint(other ColumnPredicate) bool {
	_, ok := other.(LiteralTrue)
	return ok
}
func (LiteralTrue) Or(ColumnPredicate) ColumnPredicate { return LiteralTrue{} }
func (p LiteralTrue) And(other ColumnPredicate) ColumnPredicate {
	return other
}
func (LiteralTrue) ValueSet() (map[Value]struct{}, bool) { return nil, false }
func (LiteralTrue) String() string                       { return "TRUE" }

// LiteralFalse rejects every value.
type LiteralFalse struct{}

func (LiteralFalse) Evaluate(Value) bool                { return false }
func (LiteralFalse) MightIntersect(ColumnPredicate) bool { return false }
func (LiteralFalse) Minus(ColumnPredicate) ColumnPredicate {
	return LiteralFalse{}
}
func (LiteralFalse) EqualConstraint(other ColumnPredicate) bool {
	_, ok := other.(LiteralFalse)
	return ok
}
func (LiteralFalse) Or(other ColumnPredicate) ColumnPredicate { return other }
func (LiteralFalse) And(ColumnPredicate) ColumnPredicate      { return LiteralFalse{} }
func (LiteralFalse) ValueSet() (map[Value]struct{}, bool)     { return map[Value]struct{}{}, true }
func (LiteralFalse) String() string                           { return "FALSE" }

// ValueSetPredicate accepts a fixed enumeration of literal values.
type ValueSetPredicate struct {
	Values map[Value]struct{}
}

func NewValueSet(values ...Value) ValueSetPredicate {
	m := make(map[Value]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return ValueSetPredicate{Values: m}
}

func (p ValueSetPredicate) Evaluate(v Value) bool {
	_, ok := p.Values[v]
	return ok
}

func (p ValueSetPredicate) MightIntersect(other ColumnPredicate) bool {
	switch o := other.(type) {
	case LiteralTrue:
		return len(p.Values) > 0
	case LiteralFalse:
		return false
	case ValueSetPredicate:
		for v := range p.Values {
			if _, ok := o.Values[v]; ok {
				return true
			}
		}
		return false
	default:
		vs, ok := other.ValueSet()
		if !ok {
			return true
		}
		for v := range p.Values {
			if _, ok := vs[v]; ok {
				return true
			}
		}
		return false
	}
}

func (p ValueSetPredicate) Minus(other ColumnPredicate) ColumnPredicate {
	out := make(map[Value]struct{}, len(p.Values))
	for v := range p.Values {
		if !other.Evaluate(v) {
			out[v] = struct{}{}
		}
	}
	return ValueSetPredicate{Values: out}
}

func (p ValueSetPredicate) EqualConstraint(other ColumnPredicate) bool {
	o, ok := other.(ValueSetPredicate)
	if !ok || len(o.Values) != len(p.Values) {
		return false
	}
	for v := range p.Values {
		if _, ok := o.Values[v]; !ok {
			return false
		}
	}
	return true
}

func (p ValueSetPredicate) Or(other ColumnPredicate) ColumnPredicate {
	switch o := other.(type) {
	case LiteralTrue:
		return LiteralTrue{}
	case LiteralFalse:
		return p
	case ValueSetPredicate:
		out := make(map[Value]struct{}, len(p.Values)+len(o.Values))
		for v := range p.Values {
			out[v] = struct{}{}
		}
		for v := range o.Values {
			out[v] = struct{}{}
		}
		return ValueSetPredicate{Values: out}
	default:
		return OrPredicate{Members: []ColumnPredicate{p, other}}
	}
}

func (p ValueSetPredicate) And(other ColumnPredicate) ColumnPredicate {
	switch o := other.(type) {
	case LiteralTrue:
		return p
	case LiteralFalse:
		return LiteralFalse{}
	case ValueSetPredicate:
		out := make(map[Value]struct{})
		for v := range p.Values {
			if _, ok := o.Values[v]; ok {
				out[v] = struct{}{}
			}
		}
		return ValueSetPredicate{Values: out}
	default:
		out := make(map[Value]struct{})
		for v := range p.Values {
			if other.Evaluate(v) {
				out[v] = struct{}{}
			}
		}
		return ValueSetPredicate{Values: out}
	}
}

func (p ValueSetPredicate) ValueSet() (map[Value]struct{}, bool) { return p.Values, true }

func (p ValueSetPredicate) String() string {
	parts := make([]string, 0, len(p.Values))
	for v := range p.Values {
		parts = append(parts, v.String())
	}
	sort.Strings(parts)
	return "IN(" + strings.Join(parts, ",") + ")"
}

// MemberPredicate constrains a column to a single hierarchical member,
// identified by its value together with its parent member key and level
// name; IsAll marks the distinguished "all members" member of the level.
type MemberPredicate struct {
	Value  Value
	Parent string
	Level  string
	IsAll  bool
}

func (p MemberPredicate) Evaluate(v Value) bool { return v.Equal(p.Value) }

func (p MemberPredicate) MightIntersect(other ColumnPredicate) bool {
	return other.Evaluate(p.Value)
}

func (p MemberPredicate) Minus(other ColumnPredicate) ColumnPredicate {
	if other.Evaluate(p.Value) {
		return LiteralFalse{}
	}
	return p
}

func (p MemberPredicate) EqualConstraint(other ColumnPredicate) bool {
	o, ok := other.(MemberPredicate)
	return ok && o.Value.Equal(p.Value) && o.Parent == p.Parent && o.Level == p.Level && o.IsAll == p.IsAll
}

func (p MemberPredicate) Or(other ColumnPredicate) ColumnPredicate {
	if lt, ok := other.(LiteralTrue); ok {
		return lt
	}
	if _, ok := other.(LiteralFalse); ok {
		return p
	}
	if p.EqualConstraint(other) {
		return p
	}
	return OrPredicate{Members: []ColumnPredicate{p, other}}
}

func (p MemberPredicate) And(other ColumnPredicate) ColumnPredicate {
	if other.Evaluate(p.Value) {
		return p
	}
	return LiteralFalse{}
}

func (p MemberPredicate) ValueSet() (map[Value]struct{}, bool) {
	return map[Value]struct{}{p.Value: {}}, true
}

func (p MemberPredicate) String() string {
	return fmt.Sprintf("MEMBER(%s,parent=%s,level=%s,all=%v)", p.Value, p.Parent, p.Level, p.IsAll)
}

// OrPredicate composes a list of predicates as their disjunction. It is used
// to represent member predicates (or other non-value-set predicates) ORed
// together, where a plain ValueSetPredicate union would lose fidelity.
type OrPredicate struct {
	Members []ColumnPredicate
}

func (p OrPredicate) Evaluate(v Value) bool {
	for _, m := range p.Members {
		if m.Evaluate(v) {
			return true
		}
	}
	return false
}

func (p OrPredicate) MightIntersect(other ColumnPredicate) bool {
	for _, m := range p.Members {
		if m.MightIntersect(other) {
			return true
		}
	}
	return false
}

func (p OrPredicate) Minus(other ColumnPredicate) ColumnPredicate {
	out := make([]ColumnPredicate, 0, len(p.Members))
	for _, m := range p.Members {
		d := m.Minus(other)
		if _, isFalse := d.(LiteralFalse); isFalse {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return LiteralFalse{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return OrPredicate{Members: out}
}

func (p OrPredicate) EqualConstraint(other ColumnPredicate) bool {
	o, ok := other.(OrPredicate)
	if !ok || len(o.Members) != len(p.Members) {
		return false
	}
	used := make([]bool, len(o.Members))
	for _, m := range p.Members {
		found := false
		for i, om := range o.Members {
			if used[i] {
				continue
			}
			if m.EqualConstraint(om) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (p OrPredicate) Or(other ColumnPredicate) ColumnPredicate {
	if lt, ok := other.(LiteralTrue); ok {
		return lt
	}
	if _, ok := other.(LiteralFalse); ok {
		return p
	}
	return OrPredicate{Members: append(append([]ColumnPredicate{}, p.Members...), other)}
}

func (p OrPredicate) And(other ColumnPredicate) ColumnPredicate {
	out := make([]ColumnPredicate, 0, len(p.Members))
	for _, m := range p.Members {
		out = append(out, m.And(other))
	}
	return OrPredicate{Members: out}
}

func (p OrPredicate) ValueSet() (map[Value]struct{}, bool) {
	out := make(map[Value]struct{})
	for _, m := range p.Members {
		vs, ok := m.ValueSet()
		if !ok {
			return nil, false
		}
		for v := range vs {
			out[v] = struct{}{}
		}
	}
	return out, true
}

func (p OrPredicate) String() string {
	parts := make([]string, len(p.Members))
	for i, m := range p.Members {
		parts[i] = m.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
