package btreestore

import "btreestore/internal/storage"

// NodeRef is a lazy handle to a Node identified by a Position, per spec
// §4.3. It mediates load/unload: node() materializes the resident Node
// (loading from storage on first dereference, or allocating a fresh
// empty Node when position is unset), and unload() releases it again so
// NodeCache can bound resident memory.
type NodeRef[T Value[T]] struct {
	tree     *BTree[T]
	position *storage.Position
	resident *Node[T]
	degree   int
	isRoot   bool
}

// node returns the resident Node, loading it from storage if this ref
// has a Position but no resident Node, or allocating a fresh empty Node
// if it has neither (a newly created, not-yet-saved ref). A load from
// storage registers the ref with NodeCache; returning an already
// resident Node does not touch the cache.
func (r *NodeRef[T]) node() (*Node[T], error) {
	if r.resident != nil {
		return r.resident, nil
	}
	if r.position == nil {
		n := newNode[T](r.degree, r.isRoot)
		n.ref = r
		r.resident = n
		return n, nil
	}

	logging().Debugf("NODE_LOAD position=%s", *r.position)
	n, err := r.tree.loadNode(*r.position, r.degree, r.isRoot)
	if err != nil {
		return nil, err
	}
	n.ref = r
	r.resident = n
	r.tree.cache.Put(*r.position, r)
	return n, nil
}

func (r *NodeRef[T]) setResident(n *Node[T]) {
	r.resident = n
	n.ref = r
}

// unload clears the resident Node. Callers (NodeCache, on eviction) must
// hold no outstanding references to its keys afterward — the cache
// drives this, per spec §4.3.
func (r *NodeRef[T]) unload() {
	r.resident = nil
}

func (r *NodeRef[T]) Position() (storage.Position, bool) {
	if r.position == nil {
		return storage.Position{}, false
	}
	return *r.position, true
}

func (r *NodeRef[T]) setPosition(pos storage.Position) {
	r.position = &pos
}

func (r *NodeRef[T]) IsRoot() bool { return r.isRoot }

func (r *NodeRef[T]) setIsRoot(isRoot bool) {
	r.isRoot = isRoot
	if r.resident != nil {
		r.resident.isRoot = isRoot
	}
}
