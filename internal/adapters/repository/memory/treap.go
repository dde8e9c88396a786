package memory

import (
	"math/rand/v2"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Treap ordered for the leaderboard: "less" means ranks earlier, so an
// in-order walk yields totals descending, then player ids ascending.
// Every node carries its subtree size for order-statistics queries.

type node struct {
	id    int64
	total int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aTotal, aID) appears before (bTotal, bID).
func less(aTotal, aID, bTotal, bID int64) bool {
	if aTotal != bTotal {
		return aTotal > bTotal
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id, total int64) *node {
	if n == nil {
		return &node{id: id, total: total, prio: rand.Uint64(), size: 1}
	}
	if less(total, id, n.total, n.id) {
		n.left = insert(n.left, id, total)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, total)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id, total int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case total == n.total && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, total)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, total)
		}
	case less(total, id, n.total, n.id):
		n.left = remove(n.left, id, total)
	default:
		n.right = remove(n.right, id, total)
	}
	fix(n)
	return n
}

// countGreater returns the number of nodes whose total is strictly greater than total.
func countGreater(n *node, total int64) int64 {
	var count int64
	for n != nil {
		if n.total > total {
			// n and its whole left subtree rank at or above n.total.
			count += int64(nsize(n.left)) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, players map[int64]model.Player, out *[]model.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, players, out)
	if len(*out) < limit {
		*out = append(*out, model.Entry{PlayerID: n.id, Name: players[n.id].Name, Total: n.total})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, players, out)
	}
}
