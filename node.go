package btreestore

// Node is a bounded, ordered run of keys with the B-tree invariants from
// spec §3: 0 <= len(keys) <= degree-1 once stable (degree transiently
// during a split), keys non-decreasing and duplicate-stable, and either
// every key has both children or none do.
//
// The key chain is a plain slice rather than the original Java source's
// linked Key.next chain, per spec §9's explicit preference for a
// contiguous array — grounded on how bplus_tree.go represents
// LeafEntries/BranchEntries as slices instead of linked cells.
type Node[T Value[T]] struct {
	keys   []*Key[T]
	degree int
	isRoot bool
	ref    *NodeRef[T]
}

func newNode[T Value[T]](degree int, isRoot bool) *Node[T] {
	return &Node[T]{degree: degree, isRoot: isRoot}
}

func (n *Node[T]) IsLeaf() bool {
	return len(n.keys) == 0 || !n.keys[0].hasChildren()
}

func (n *Node[T]) IsRoot() bool { return n.isRoot }

func (n *Node[T]) KeyCount() int { return len(n.keys) }

func (n *Node[T]) KeyAt(i int) *Key[T] { return n.keys[i] }

// Next returns the key immediately following k in this node's ascending
// chain, mirroring the conceptual Key.next accessor from spec §3 — kept
// here rather than on Key since the chain is array-backed (spec §9).
func (n *Node[T]) Next(k *Key[T]) (*Key[T], bool) {
	for i, candidate := range n.keys {
		if candidate == k {
			if i+1 < len(n.keys) {
				return n.keys[i+1], true
			}
			return nil, false
		}
	}
	return nil, false
}

// upperBound returns the smallest index i such that keys[i].value > t,
// or len(keys) if no such key exists. It is used both to pick the
// descent child ("equal values go right", spec §4.2/§9) and to pick the
// stable insertion position for a new key with the same value ("ordered
// by insertion", spec §3) — both want the same index.
func upperBound[T Value[T]](keys []*Key[T], t T) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.Less(keys[mid].value) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (n *Node[T]) descendRefFor(t T) *NodeRef[T] {
	idx := upperBound(n.keys, t)
	if idx < len(n.keys) {
		return n.keys[idx].left
	}
	return n.keys[len(n.keys)-1].right
}

// find walks the key chain per spec §4.2. A promoted separator lives
// only in an internal node, not in either child (split, node.go:200
// pulls it out of both halves), so every node — leaf or internal —
// must check its own keys for a match before descending; descending
// straight past an internal node's keys would miss any value that was
// ever promoted as a separator.
func (n *Node[T]) find(t T) (T, bool, error) {
	var zero T
	for _, k := range n.keys {
		if k.deleted {
			continue
		}
		if !k.value.Less(t) && !t.Less(k.value) {
			return k.value, true, nil
		}
	}
	if n.IsLeaf() {
		return zero, false, nil
	}

	child := n.descendRefFor(t)
	childNode, err := child.node()
	if err != nil {
		return zero, false, err
	}
	return childNode.find(t)
}

// delete marks matching keys as deleted and returns how many were
// found, per spec §4.2. Like find, it must check the current node's
// own keys, not just leaves — a separator holds a value that lives
// nowhere else — and it keeps descending afterward so duplicate
// copies of the same value spread across a subtree (spec §3's
// insertion-order duplicates) are all marked, not just the first one
// found. A split can leave copies equal to a separator in its left
// subtree, so every child from the first key >= t through the descent
// child is visited. It does not rebalance (spec Non-goals). A node that
// had any key marked is queued for resave, same as add.
func (n *Node[T]) delete(t T, saveQueue *[]*NodeRef[T]) (int, error) {
	count := 0
	for _, k := range n.keys {
		if !k.deleted && !k.value.Less(t) && !t.Less(k.value) {
			k.deleted = true
			count++
		}
	}
	if count > 0 {
		appendUnique(saveQueue, n.ref)
	}
	if n.IsLeaf() {
		return count, nil
	}

	lo := 0
	for lo < len(n.keys) && n.keys[lo].value.Less(t) {
		lo++
	}
	hi := upperBound(n.keys, t)
	for i := lo; i <= hi; i++ {
		child := n.keys[len(n.keys)-1].right
		if i < len(n.keys) {
			child = n.keys[i].left
		}
		childNode, err := child.node()
		if err != nil {
			return count, err
		}
		childCount, err := childNode.delete(t, saveQueue)
		if err != nil {
			return count, err
		}
		count += childCount
	}
	return count, nil
}

// add inserts t into this node, descending to a leaf and unwinding any
// splits per spec §4.2's insert algorithm. It returns the separator key
// produced if this node overflowed and split; callers absorb a non-nil
// separator into their own key chain and re-check their own overflow.
// saveQueue accumulates every freshly-created-or-mutated node in
// child-before-parent order, matching the "Save queue" contract in the
// glossary: a parent's serialized child links are only meaningful once
// the child itself has a Position, so children must flush first.
func (n *Node[T]) add(t T, saveQueue *[]*NodeRef[T]) (*Key[T], error) {
	if n.IsLeaf() {
		insertAt := upperBound(n.keys, t)
		n.insertKeyAt(insertAt, newKey[T](t))

		if len(n.keys) < n.degree {
			appendUnique(saveQueue, n.ref)
			return nil, nil
		}
		return n.split(saveQueue)
	}

	child := n.descendRefFor(t)
	childNode, err := child.node()
	if err != nil {
		return nil, err
	}
	separator, err := childNode.add(t, saveQueue)
	if err != nil {
		return nil, err
	}
	if separator == nil {
		return nil, nil
	}

	insertAt := upperBound(n.keys, separator.value)
	n.linkNeighbors(insertAt, separator)
	n.insertKeyAt(insertAt, separator)

	if len(n.keys) < n.degree {
		appendUnique(saveQueue, n.ref)
		return nil, nil
	}
	return n.split(saveQueue)
}

// linkNeighbors restores the shared-subtree invariant (spec §3: "key.right
// of a key equals next_key.left") when inserting separator at insertAt:
// the key before it, if any, gets its right set to separator's left, and
// the key after it, if any, gets its left set to separator's right.
func (n *Node[T]) linkNeighbors(insertAt int, separator *Key[T]) {
	if insertAt > 0 {
		n.keys[insertAt-1].setRight(separator.left)
	}
	if insertAt < len(n.keys) {
		n.keys[insertAt].setLeft(separator.right)
	}
}

func (n *Node[T]) insertKeyAt(i int, k *Key[T]) {
	n.keys = append(n.keys, nil)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = k
}

// split implements spec §4.2 step 4: m = (k-1)/2 is the lower median;
// keys [0,m) go left, key m is promoted as the separator, keys (m,k) go
// right. The node being split is retired — its old slot is abandoned
// (spec §9) — so n.ref is never added back to saveQueue; only the two
// fresh children are.
func (n *Node[T]) split(saveQueue *[]*NodeRef[T]) (*Key[T], error) {
	k := len(n.keys)
	m := (k - 1) / 2

	leftKeys := make([]*Key[T], m)
	copy(leftKeys, n.keys[:m])
	separator := n.keys[m]
	rightKeys := make([]*Key[T], k-m-1)
	copy(rightKeys, n.keys[m+1:])

	leftNode := &Node[T]{keys: leftKeys, degree: n.degree}
	rightNode := &Node[T]{keys: rightKeys, degree: n.degree}

	leftRef := n.ref.tree.newRef(false)
	rightRef := n.ref.tree.newRef(false)
	leftNode.ref = leftRef
	rightNode.ref = rightRef
	leftRef.setResident(leftNode)
	rightRef.setResident(rightNode)

	separator.left = leftRef
	separator.right = rightRef
	separator.deleted = false

	appendUnique(saveQueue, leftRef)
	appendUnique(saveQueue, rightRef)

	logging().Debugf("NODE_SPLIT medianIndex=%d leftKeys=%d rightKeys=%d", m, len(leftKeys), len(rightKeys))

	return separator, nil
}

func appendUnique[T Value[T]](saveQueue *[]*NodeRef[T], ref *NodeRef[T]) {
	for _, existing := range *saveQueue {
		if existing == ref {
			return
		}
	}
	*saveQueue = append(*saveQueue, ref)
}

// frameSize returns the fixed slot width in bytes for a node of the
// given degree and per-key width, per spec §4.5: S = degree * keySizeBytes.
func frameSize(degree, keySizeBytes int) int {
	return degree * keySizeBytes
}
