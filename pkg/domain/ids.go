package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeID names a registered Node type. Every Partition holds Nodes of exactly one TypeID.
type TypeID string

// ParamIndex is the declaration index of a Parameter inside its Node type (0-based).
type ParamIndex int

// FunctionID keys a Tree Function implementation in the Registry.
type FunctionID string

// NodeID addresses a Node by its partition type and 1-based ordinal.
// Ordinals are permanent: they are never reused after a Node is removed.
type NodeID struct {
	Type    TypeID `json:"type" yaml:"type"`
	Ordinal int    `json:"ordinal" yaml:"ordinal"`
}

// IsZero reports whether the id is unset.
func (id NodeID) IsZero() bool {
	return id.Type == "" && id.Ordinal == 0
}

func (id NodeID) String() string {
	return fmt.Sprintf("%s:%d", id.Type, id.Ordinal)
}

// Param returns the GID of the Parameter at idx on this Node.
func (id NodeID) Param(idx ParamIndex) GID {
	return GID{Node: id, Param: idx}
}

// ParseNodeID parses the "Type:ordinal" form produced by NodeID.String.
func ParseNodeID(s string) (NodeID, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return NodeID{}, fmt.Errorf("invalid node id %q", s)
	}
	ord, err := strconv.Atoi(s[i+1:])
	if err != nil || ord < 1 {
		return NodeID{}, fmt.Errorf("invalid node ordinal in %q", s)
	}
	return NodeID{Type: TypeID(s[:i]), Ordinal: ord}, nil
}

// GID is the globally stable address of a Parameter: (Node, local index).
type GID struct {
	Node  NodeID     `json:"node" yaml:"node"`
	Param ParamIndex `json:"param" yaml:"param"`
}

func (g GID) String() string {
	return fmt.Sprintf("%s#%d", g.Node, g.Param)
}

// Less orders GIDs by type, ordinal and index. Used wherever iteration must be stable.
func (g GID) Less(o GID) bool {
	if g.Node.Type != o.Node.Type {
		return g.Node.Type < o.Node.Type
	}
	if g.Node.Ordinal != o.Node.Ordinal {
		return g.Node.Ordinal < o.Node.Ordinal
	}
	return g.Param < o.Param
}

// ParseGID parses the "Type:ordinal#index" form produced by GID.String.
func ParseGID(s string) (GID, error) {
	i := strings.LastIndexByte(s, '#')
	if i <= 0 {
		return GID{}, fmt.Errorf("invalid parameter id %q", s)
	}
	node, err := ParseNodeID(s[:i])
	if err != nil {
		return GID{}, err
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil || idx < 0 {
		return GID{}, fmt.Errorf("invalid parameter index in %q", s)
	}
	return GID{Node: node, Param: ParamIndex(idx)}, nil
}
