package decks

// Counters are the three mutually exclusive card counts AnkiWeb reports for a deck.
type Counters struct {
	Due      uint64 `json:"due"`
	Learning uint64 `json:"learning"`
	New      uint64 `json:"new"`
}

// Add returns the element-wise sum of c and other.
func (c Counters) Add(other Counters) Counters {
	return Counters{
		Due:      c.Due + other.Due,
		Learning: c.Learning + other.Learning,
		New:      c.New + other.New,
	}
}

// Pending is the number of cards still waiting on the student.
func (c Counters) Pending() uint64 {
	return c.Due + c.Learning + c.New
}

func (c Counters) IsZero() bool {
	return c == Counters{}
}

// Node is a deck in the tree returned by AnkiWeb. The root of a tree is synthetic and has
// an empty name, its children are the top-level decks.
type Node struct {
	// ID is the upstream deck id, it is not guaranteed to be stable across requests.
	ID       uint64
	Name     string
	Counters Counters
	Children []*Node
}

// NewRoot creates an empty synthetic root.
func NewRoot() *Node {
	return &Node{}
}

func (n *Node) AddChild(child *Node) {
	n.Children = append(n.Children, child)
}

// Walk visits n and all of its descendants depth first. depth is 0 for n.
func (n *Node) Walk(visit func(node *Node, depth int)) {
	n.walk(visit, 0)
}

func (n *Node) walk(visit func(node *Node, depth int), depth int) {
	visit(n, depth)
	for _, c := range n.Children {
		c.walk(visit, depth+1)
	}
}

// Count returns the number of decks under n, excluding n itself.
func (n *Node) Count() int {
	count := -1
	n.Walk(func(*Node, int) { count++ })
	return count
}
