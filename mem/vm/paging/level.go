package paging

import "fmt"

// Level is the level of a table in the hierarchy. Level4 is the root.
type Level int

// Table levels.
const (
	Level1 Level = 1
	Level2 Level = 2
	Level3 Level = 3
	Level4 Level = 4
)

// Next returns the level of the tables that entries at this level point to.
// Level1 entries point at frames, so Next reports false for it.
func (l Level) Next() (Level, bool) {
	switch l {
	case Level4, Level3, Level2:
		return l - 1, true
	default:
		return 0, false
	}
}

func (l Level) String() string {
	return fmt.Sprintf("P%d", int(l))
}
