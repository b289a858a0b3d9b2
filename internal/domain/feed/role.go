package feed

import "github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"

// Role is a card's position relative to the window.
type Role int

const (
	RoleUnmounted Role = iota
	RoleStopped
	RolePreload
	RoleActive
)

func (r Role) String() string {
	switch r {
	case RoleActive:
		return "active"
	case RolePreload:
		return "preload"
	case RoleStopped:
		return "stopped"
	default:
		return "unmounted"
	}
}

// Live reports whether cards in this role hold a surface.
func (r Role) Live() bool {
	return r == RoleActive || r == RolePreload
}

// RoleFor computes the role of index given the active index. instantiated
// records whether the index ever held a surface.
func RoleFor(index, active int, instantiated bool) Role {
	switch d := index - active; {
	case d == 0:
		return RoleActive
	case d == 1 || d == -1:
		return RolePreload
	case instantiated:
		return RoleStopped
	default:
		return RoleUnmounted
	}
}

// CardState is the window bookkeeping of one feed index.
type CardState struct {
	Index    int
	Role     Role
	Degraded bool
	Attempts int
	// CardID names the live instantiation, empty when none.
	CardID id.CardID
}

// window returns the indices that should hold a surface.
func window(active, n int) []int {
	if n == 0 {
		return nil
	}
	out := make([]int, 0, 3)
	for _, i := range []int{active, active - 1, active + 1} {
		if i >= 0 && i < n {
			out = append(out, i)
		}
	}
	return out
}
