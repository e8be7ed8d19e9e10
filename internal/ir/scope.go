package ir

import (
	"fmt"
	"strings"
)

// ScopeType selects how an EntityScope obtains its entities.
type ScopeType uint8

const (
	ScopeNull ScopeType = iota
	ScopeInvalid
	ScopeSelf
	ScopeGlobal
	ScopeArgument
	ScopeByID
	ScopeInRegister
	ScopeWithGroup
	ScopeWithName
	ScopeWithPrefab
)

var scopeTypeNames = [...]string{
	ScopeNull:       "null",
	ScopeInvalid:    "invalid",
	ScopeSelf:       "self",
	ScopeGlobal:     "global",
	ScopeArgument:   "argument",
	ScopeByID:       "id",
	ScopeInRegister: "register",
	ScopeWithGroup:  "group",
	ScopeWithName:   "name",
	ScopeWithPrefab: "prefab",
}

func (t ScopeType) String() string {
	if int(t) < len(scopeTypeNames) {
		return scopeTypeNames[t]
	}
	return fmt.Sprintf("scope(%d)", uint8(t))
}

// ParseScopeType maps a scope type name back to its ScopeType.
func ParseScopeType(name string) (ScopeType, bool) {
	for t, n := range scopeTypeNames {
		if n == name {
			return ScopeType(t), true
		}
	}
	return ScopeInvalid, false
}

// LinkSeparator splits the segments of an EntityScope link path.
const LinkSeparator = "."

// EntityScope describes how to obtain zero or more entities.
//
// Only the fields relevant to Type are meaningful: ID for ScopeByID,
// Register for ScopeInRegister, Group for ScopeWithGroup and Search (a
// wildcard pattern) for ScopeWithName and ScopeWithPrefab. Links is an
// optional dotted path of named entity links applied to every base result.
type EntityScope struct {
	Type         ScopeType
	ID           EntityID
	Register     int
	Group        GroupID
	Search       string
	Links        string
	UseFirst     bool
	UseFirstLink bool
}

// SelfScope is the scope of the rule's owning entity.
func SelfScope() EntityScope { return EntityScope{Type: ScopeSelf} }

// GlobalScope is the scope of the environment's global entity.
func GlobalScope() EntityScope { return EntityScope{Type: ScopeGlobal} }

// ArgumentScope resolves the entity scope carried by the trigger argument.
func ArgumentScope() EntityScope { return EntityScope{Type: ScopeArgument} }

// IDScope selects a single entity by id.
func IDScope(id EntityID) EntityScope { return EntityScope{Type: ScopeByID, ID: id} }

// RegisterScope resolves the entity scope held in register r.
func RegisterScope(r int) EntityScope { return EntityScope{Type: ScopeInRegister, Register: r} }

// GroupScope selects every entity in group g.
func GroupScope(g GroupID) EntityScope { return EntityScope{Type: ScopeWithGroup, Group: g} }

// NameScope selects entities whose name matches pattern.
func NameScope(pattern string) EntityScope {
	return EntityScope{Type: ScopeWithName, Search: pattern}
}

// PrefabScope selects entities whose prefab matches pattern.
func PrefabScope(pattern string) EntityScope {
	return EntityScope{Type: ScopeWithPrefab, Search: pattern}
}

// First returns a copy of s that collapses its base result to the first match.
func (s EntityScope) First() EntityScope {
	s.UseFirst = true
	return s
}

// Via returns a copy of s that follows the given link path.
func (s EntityScope) Via(path string, firstLink bool) EntityScope {
	s.Links = path
	s.UseFirstLink = firstLink
	return s
}

// LinkPath splits Links into its segments. Empty segments are dropped.
func (s EntityScope) LinkPath() []string {
	if s.Links == "" {
		return nil
	}
	parts := strings.Split(s.Links, LinkSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsSingle reports whether the scope is known to yield at most one entity
// without resolving it. Argument and register scopes depend on the value they
// hold and are treated as single, since they may only carry one level.
func (s EntityScope) IsSingle() bool {
	if len(s.LinkPath()) > 0 && !s.UseFirstLink {
		return false
	}
	switch s.Type {
	case ScopeNull, ScopeInvalid, ScopeSelf, ScopeGlobal, ScopeByID,
		ScopeArgument, ScopeInRegister:
		return true
	default:
		return s.UseFirst
	}
}

// IsMulti is the negation of IsSingle.
func (s EntityScope) IsMulti() bool { return !s.IsSingle() }

// IsIndirect reports whether the scope reads another scope out of a value.
func (s EntityScope) IsIndirect() bool {
	return s.Type == ScopeArgument || s.Type == ScopeInRegister
}

func (s EntityScope) String() string {
	var b strings.Builder
	b.WriteString(s.Type.String())
	switch s.Type {
	case ScopeByID:
		fmt.Fprintf(&b, "(%s)", s.ID)
	case ScopeInRegister:
		fmt.Fprintf(&b, "(%d)", s.Register)
	case ScopeWithGroup:
		fmt.Fprintf(&b, "(%s)", s.Group)
	case ScopeWithName, ScopeWithPrefab:
		fmt.Fprintf(&b, "(%q)", s.Search)
	}
	if s.UseFirst {
		b.WriteString(".first")
	}
	if s.Links != "" {
		b.WriteString("->")
		b.WriteString(s.Links)
		if s.UseFirstLink {
			b.WriteString(".first")
		}
	}
	return b.String()
}
