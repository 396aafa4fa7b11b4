package btreestore

// Iterator is a lazy, restartable in-order walk over a tree's values,
// per spec §4.2 ("iterate() → lazy sequence of T ... restartable from
// the root. Safe to run concurrently with writers"). It loads children
// on demand rather than materializing the whole tree, since Node here
// has per-key left/right links rather than a leaf-sibling chain — so it
// keeps an explicit stack of (node, next key index) frames and is
// advanced one value at a time by Next.
type Iterator[T Value[T]] struct {
	stack []iterFrame[T]
	err   error
}

type iterFrame[T Value[T]] struct {
	node *Node[T]
	idx  int
}

func newIterator[T Value[T]](root *NodeRef[T]) *Iterator[T] {
	it := &Iterator[T]{}
	it.pushSpine(root)
	return it
}

// pushSpine pushes ref and its leftmost descendants, one frame per level,
// each starting at key index 0 — the "descend before key 0" half of
// in-order traversal. A nil ref (absent child) is a no-op.
func (it *Iterator[T]) pushSpine(ref *NodeRef[T]) {
	for ref != nil {
		node, err := ref.node()
		if err != nil {
			it.err = err
			return
		}
		it.stack = append(it.stack, iterFrame[T]{node: node})
		if node.KeyCount() == 0 {
			return
		}
		ref = node.KeyAt(0).Left()
	}
}

// Next returns the next value in ascending order, skipping deleted
// keys, or ok=false once the sequence is exhausted. A reader may observe
// a node mutated mid-traversal by a concurrent writer (spec §5); this is
// tolerated, not guarded against.
func (it *Iterator[T]) Next() (T, bool, error) {
	var zero T
	if it.err != nil {
		return zero, false, it.err
	}

	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.idx >= top.node.KeyCount() {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}

		key := top.node.KeyAt(top.idx)
		top.idx++

		// The subtree after this key (== the left subtree of the next key,
		// when one exists) hasn't been visited yet.
		it.pushSpine(key.Right())
		if it.err != nil {
			return zero, false, it.err
		}

		if key.Deleted() {
			continue
		}
		return key.Value(), true, nil
	}
	return zero, false, nil
}

// All drains the iterator into a slice. Convenience for tests and small
// trees; large trees should call Next directly to stay lazy.
func (it *Iterator[T]) All() ([]T, error) {
	var out []T
	for {
		v, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}
