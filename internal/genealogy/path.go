package genealogy

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// RootPath is the path of every tenant's root node.
const RootPath Path = "root"

const pathSeparator = "."

// Path encodes the binary choices from the root to a node, e.g. root.L.R.
type Path string

// AncestorRef is one proper prefix of a path: the ancestor's own path, how
// many steps above the member it sits and which of its legs holds the member.
type AncestorRef struct {
	Path     Path
	Distance int
	Leg      enums.Position
}

// Child returns the path of the child in the given slot.
func (p Path) Child(pos enums.Position) Path {
	return Path(string(p) + pathSeparator + pos.PathSegment())
}

// Validate checks the path starts at the root and only holds L/R segments.
func (p Path) Validate() error {
	parts := strings.Split(string(p), pathSeparator)
	if parts[0] != string(RootPath) {
		return fmt.Errorf("path %q does not start at root", p)
	}
	for _, segment := range parts[1:] {
		if _, err := positionFromSegment(segment); err != nil {
			return fmt.Errorf("path %q: %w", p, err)
		}
	}
	return nil
}

// Depth is the number of placements below the root; the root has depth 0.
func (p Path) Depth() int {
	return strings.Count(string(p), pathSeparator)
}

// Level is the tree level the path sits at; the root is level 1.
func (p Path) Level() int {
	return p.Depth() + 1
}

// Leg returns the slot the node occupies under its parent.
func (p Path) Leg() (enums.Position, bool) {
	idx := strings.LastIndex(string(p), pathSeparator)
	if idx < 0 {
		return "", false
	}
	pos, err := positionFromSegment(string(p)[idx+1:])
	if err != nil {
		return "", false
	}
	return pos, true
}

// Parent returns the path one level up.
func (p Path) Parent() (Path, bool) {
	idx := strings.LastIndex(string(p), pathSeparator)
	if idx < 0 {
		return "", false
	}
	return p[:idx], true
}

// Ancestors returns every proper prefix of the path, nearest first.
func (p Path) Ancestors() []AncestorRef {
	parts := strings.Split(string(p), pathSeparator)
	refs := make([]AncestorRef, 0, len(parts)-1)
	for i := len(parts) - 1; i >= 1; i-- {
		leg, err := positionFromSegment(parts[i])
		if err != nil {
			break
		}
		refs = append(refs, AncestorRef{
			Path:     Path(strings.Join(parts[:i], pathSeparator)),
			Distance: len(parts) - i,
			Leg:      leg,
		})
	}
	return refs
}

// IsPrefixOf reports whether p is a proper ancestor of other.
func (p Path) IsPrefixOf(other Path) bool {
	return strings.HasPrefix(string(other), string(p)+pathSeparator)
}

func (p Path) String() string {
	return string(p)
}

func positionFromSegment(segment string) (enums.Position, error) {
	switch segment {
	case enums.PositionLeft.PathSegment():
		return enums.PositionLeft, nil
	case enums.PositionRight.PathSegment():
		return enums.PositionRight, nil
	default:
		return "", fmt.Errorf("invalid path segment %q", segment)
	}
}
