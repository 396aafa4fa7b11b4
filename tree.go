package btreestore

import (
	"encoding/binary"
	"fmt"
	"sync"

	"btreestore/internal/storage"
)

// metadataReservedBytes is the fixed-size region at the head of the
// metadata file; the remainder is zero-padded (spec §6).
const metadataReservedBytes = 1000

// defaultRollBytes is the storage file size threshold Store rolls at. The spec
// leaves the exact threshold unspecified ("exceeds a size threshold");
// 64MiB is a deliberately generous default so Degree/KeySizeBytes-sized
// test trees never rolls files unintentionally.
const defaultRollBytes = 64 << 20

// BTree is the top-level coordinator from spec §4.6: it owns the root
// NodeRef, serializes writers behind writeMu, orchestrates the flush
// queue, and persists the metadata frame.
type BTree[T Value[T]] struct {
	degree       int
	keySizeBytes int
	codec        Codec[T]

	store *storage.Store
	cache *NodeCache[T]

	metaBackend storage.MetaBackend

	writeMu sync.Mutex
	root    *NodeRef[T]
}

// Builder is the fluent configuration façade from spec §6. Degree,
// KeySizeBytes, and CacheSize default to 100 per spec; Path and Codec are
// required.
type Builder[T Value[T]] struct {
	degree       int
	keySizeBytes int
	cacheSize    int
	path         string
	codec        Codec[T]
	backend      storage.Backend
}

// NewBuilder starts a Builder with spec defaults (degree=100,
// keySizeBytes=100, cacheSize=100). codec tells the tree how to
// serialize the stored value type.
func NewBuilder[T Value[T]](codec Codec[T]) *Builder[T] {
	return &Builder[T]{
		degree:       100,
		keySizeBytes: 100,
		cacheSize:    100,
		codec:        codec,
	}
}

func (b *Builder[T]) Degree(degree int) *Builder[T] {
	b.degree = degree
	return b
}

func (b *Builder[T]) Path(path string) *Builder[T] {
	b.path = path
	return b
}

func (b *Builder[T]) KeySizeBytes(size int) *Builder[T] {
	b.keySizeBytes = size
	return b
}

func (b *Builder[T]) CacheSize(size int) *Builder[T] {
	b.cacheSize = size
	return b
}

// WithBackend overrides the storage Backend, bypassing the filesystem.
// Grounded on simplejsondb.NewWithDataFile's test seam; production
// callers never need this, tests always do.
func (b *Builder[T]) WithBackend(backend storage.Backend) *Builder[T] {
	b.backend = backend
	return b
}

// Build validates configuration and either opens an existing tree at
// Path (adopting its persisted degree and root location, per spec §4.6)
// or creates a fresh one.
func (b *Builder[T]) Build() (*BTree[T], error) {
	if b.degree < 2 {
		return nil, &ConfigError{Msg: "degree must be >= 2"}
	}
	if b.keySizeBytes <= 0 {
		return nil, &ConfigError{Msg: "keySizeBytes must be > 0"}
	}
	if b.cacheSize < 0 {
		return nil, &ConfigError{Msg: "cacheSize must be >= 0"}
	}
	if b.path == "" && b.backend == nil {
		return nil, &ConfigError{Msg: "path is required"}
	}
	if b.codec.Size <= 0 {
		return nil, &ConfigError{Msg: "codec size must be > 0"}
	}
	if b.codec.Size+keyFrameOverhead > b.keySizeBytes {
		return nil, &ConfigError{Msg: fmt.Sprintf("keySizeBytes too small: need at least %d for this codec", b.codec.Size+keyFrameOverhead)}
	}

	backend := b.backend
	if backend == nil {
		backend = storage.NewOSBackend(b.path)
	}
	metaBackend, ok := backend.(storage.MetaBackend)
	if !ok {
		return nil, &ConfigError{Msg: "backend does not implement MetaBackend"}
	}

	tree := &BTree[T]{
		degree:       b.degree,
		keySizeBytes: b.keySizeBytes,
		codec:        b.codec,
		cache:        NewNodeCache[T](b.cacheSize),
		metaBackend:  metaBackend,
	}

	meta, ok, err := tree.readMetadata()
	if err != nil {
		return nil, err
	}
	if ok {
		tree.degree = int(meta.degree)
		offset, err := backend.Size(meta.storageFileNumber)
		if err != nil {
			return nil, &IOError{Op: "stat storage", Err: err}
		}
		tree.store = storage.NewStore(backend, defaultRollBytes, meta.storageFileNumber, offset)
		tree.root = &NodeRef[T]{tree: tree, degree: tree.degree, isRoot: true}
		tree.root.setPosition(storage.Position{FileNumber: meta.rootFileNumber, Offset: meta.rootOffset})
		return tree, nil
	}

	tree.store = storage.NewStore(backend, defaultRollBytes, 0, 0)
	tree.root = &NodeRef[T]{tree: tree, degree: tree.degree, isRoot: true}
	rootNode := newNode[T](tree.degree, true)
	tree.root.setResident(rootNode)

	if err := tree.flush([]*NodeRef[T]{tree.root}); err != nil {
		return nil, err
	}
	if err := tree.writeMetadata(); err != nil {
		return nil, err
	}
	return tree, nil
}

type metadataFrame struct {
	storageFileNumber uint64
	rootFileNumber    uint64
	rootOffset        uint64
	degree            int32
}

func (t *BTree[T]) metadataSize() int {
	return 8 + 8 + 8 + 4
}

func (t *BTree[T]) readMetadata() (metadataFrame, bool, error) {
	size, err := t.metaBackend.SizeMeta()
	if err != nil {
		return metadataFrame{}, false, &IOError{Op: "stat metadata", Err: err}
	}
	if size == 0 {
		return metadataFrame{}, false, nil
	}

	buf := make([]byte, t.metadataSize())
	if err := t.metaBackend.ReadMeta(0, buf); err != nil {
		return metadataFrame{}, false, &IOError{Op: "read metadata", Err: err}
	}

	var m metadataFrame
	m.storageFileNumber = binary.BigEndian.Uint64(buf[0:8])
	m.rootFileNumber = binary.BigEndian.Uint64(buf[8:16])
	m.rootOffset = binary.BigEndian.Uint64(buf[16:24])
	m.degree = int32(binary.BigEndian.Uint32(buf[24:28]))
	return m, true, nil
}

func (t *BTree[T]) writeMetadata() error {
	rootPos, ok := t.root.Position()
	if !ok {
		return &FormatError{Msg: "cannot persist metadata: root has no position"}
	}

	buf := make([]byte, metadataReservedBytes)
	binary.BigEndian.PutUint64(buf[0:8], t.store.CurrentFileNumber())
	binary.BigEndian.PutUint64(buf[8:16], rootPos.FileNumber)
	binary.BigEndian.PutUint64(buf[16:24], rootPos.Offset)
	binary.BigEndian.PutUint32(buf[24:28], uint32(t.degree))

	if err := t.metaBackend.WriteMeta(0, buf); err != nil {
		return &IOError{Op: "write metadata", Err: err}
	}
	return nil
}

func (t *BTree[T]) newRef(isRoot bool) *NodeRef[T] {
	return &NodeRef[T]{tree: t, degree: t.degree, isRoot: isRoot}
}

// refFor returns the cached NodeRef at pos if resident, or a fresh
// unloaded handle otherwise — load happens lazily on first node() call.
func (t *BTree[T]) refFor(pos storage.Position, isRoot bool) *NodeRef[T] {
	if ref, ok := t.cache.Get(pos); ok {
		return ref
	}
	ref := t.newRef(isRoot)
	ref.setPosition(pos)
	return ref
}

func (t *BTree[T]) frameSize() int {
	return frameSize(t.degree, t.keySizeBytes)
}

// loadNode materializes a Node by reading and decoding its slot, per
// spec §4.5's load description. Child links become unresolved NodeRefs
// registered with the cache lazily when first dereferenced.
func (t *BTree[T]) loadNode(pos storage.Position, degree int, isRoot bool) (*Node[T], error) {
	raw, err := t.store.ReadSlot(pos, t.frameSize())
	if err != nil {
		return nil, &IOError{Op: "read node", Err: err}
	}
	return t.decodeNode(raw, degree, isRoot)
}

func (t *BTree[T]) decodeNode(buf []byte, degree int, isRoot bool) (*Node[T], error) {
	if len(buf) < 6 {
		return nil, &FormatError{Msg: "node frame shorter than header"}
	}
	storedIsRoot := buf[0] != 0
	count := int32(binary.BigEndian.Uint32(buf[2:6]))
	if count < 0 {
		return nil, &FormatError{Msg: "negative key count in node frame"}
	}

	n := newNode[T](degree, storedIsRoot || isRoot)
	perKey := t.codec.Size + keyFrameOverhead
	off := 6
	var (
		prevRightRef  *NodeRef[T]
		prevRightPos  storage.Position
		havePrevRight bool
	)
	for i := int32(0); i < count; i++ {
		if off+perKey > len(buf) {
			return nil, &FormatError{Msg: "node frame truncated mid-key"}
		}
		value, err := t.codec.Decode(buf[off : off+t.codec.Size])
		if err != nil {
			return nil, &FormatError{Msg: "key value decode failed: " + err.Error()}
		}
		p := off + t.codec.Size
		leftFile := binary.BigEndian.Uint64(buf[p : p+8])
		leftOff := binary.BigEndian.Uint64(buf[p+8 : p+16])
		rightFile := binary.BigEndian.Uint64(buf[p+16 : p+24])
		rightOff := binary.BigEndian.Uint64(buf[p+24 : p+32])
		deleted := buf[p+32] != 0

		k := newKey[T](value)
		k.deleted = deleted

		// Adjacent keys share their middle subtree (spec §3: "key.right of a
		// key equals next_key.left"); reuse the previous key's right NodeRef
		// rather than minting a second one for the same Position, or the
		// per-Position residency invariant (§4.3) would be violated the
		// moment either copy is mutated and flushed.
		if leftOff != childAbsentOffset {
			if havePrevRight && leftFile == prevRightPos.FileNumber && leftOff == prevRightPos.Offset {
				k.left = prevRightRef
			} else {
				k.left = t.refFor(storage.Position{FileNumber: leftFile, Offset: leftOff}, false)
			}
		}
		if rightOff != childAbsentOffset {
			k.right = t.refFor(storage.Position{FileNumber: rightFile, Offset: rightOff}, false)
			prevRightRef = k.right
			prevRightPos = storage.Position{FileNumber: rightFile, Offset: rightOff}
			havePrevRight = true
		} else {
			havePrevRight = false
		}

		n.keys = append(n.keys, k)
		off += perKey
	}
	return n, nil
}

func (t *BTree[T]) encodeNode(n *Node[T]) ([]byte, error) {
	frame := t.frameSize()
	perKey := t.codec.Size + keyFrameOverhead
	needed := 6 + perKey*len(n.keys)
	if needed > frame {
		return nil, &CapacityError{Msg: fmt.Sprintf("node needs %d bytes, slot is %d (degree=%d keySizeBytes=%d)", needed, frame, t.degree, t.keySizeBytes)}
	}

	buf := make([]byte, frame)
	if n.isRoot {
		buf[0] = 1
	}
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(n.keys)))

	off := 6
	for _, k := range n.keys {
		if err := t.codec.Encode(k.value, buf[off:off+t.codec.Size]); err != nil {
			return nil, err
		}
		p := off + t.codec.Size

		leftFile, leftOff := childAbsentOffset, childAbsentOffset
		if k.left != nil {
			if pos, ok := k.left.Position(); ok {
				leftFile, leftOff = pos.FileNumber, pos.Offset
			}
		}
		rightFile, rightOff := childAbsentOffset, childAbsentOffset
		if k.right != nil {
			if pos, ok := k.right.Position(); ok {
				rightFile, rightOff = pos.FileNumber, pos.Offset
			}
		}

		binary.BigEndian.PutUint64(buf[p:p+8], leftFile)
		binary.BigEndian.PutUint64(buf[p+8:p+16], leftOff)
		binary.BigEndian.PutUint64(buf[p+16:p+24], rightFile)
		binary.BigEndian.PutUint64(buf[p+24:p+32], rightOff)
		if k.deleted {
			buf[p+32] = 1
		}
		off += perKey
	}
	return buf, nil
}

// flush is Storage.save from spec §4.5: assign a position to every
// queued NodeRef that doesn't already have one (fresh nodes from a
// split or a new root), overwrite in place for ones being resaved after
// an in-place mutation, serialize, and write. It registers every
// freshly-positioned ref with the cache, per insert flush protocol step
// 5.
func (t *BTree[T]) flush(saveQueue []*NodeRef[T]) error {
	frame := t.frameSize()
	for _, ref := range saveQueue {
		node, err := ref.node()
		if err != nil {
			return err
		}

		pos, hadPosition := ref.Position()
		if !hadPosition {
			pos, err = t.store.NextPosition(frame)
			if err != nil {
				return &IOError{Op: "allocate position", Err: err}
			}
			ref.setPosition(pos)
		}

		buf, err := t.encodeNode(node)
		if err != nil {
			return err
		}
		if err := t.store.WriteSlot(pos, buf); err != nil {
			return &IOError{Op: "write node", Err: err}
		}

		logging().Debugf("NODE_SAVE position=%s keys=%d reused=%t", pos, node.KeyCount(), hadPosition)
		t.cache.Put(pos, ref)
	}
	return nil
}

// Add inserts t, following the insert flush protocol of spec §4.6.
func (t *BTree[T]) Add(value T) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	rootNode, err := t.root.node()
	if err != nil {
		return err
	}

	var saveQueue []*NodeRef[T]
	separator, err := rootNode.add(value, &saveQueue)
	if err != nil {
		return err
	}

	newRoot := t.root
	if separator != nil {
		promoted := t.newRef(true)
		promotedNode := newNode[T](t.degree, true)
		promotedNode.keys = []*Key[T]{separator}
		// The old root's slot is abandoned: split() already moved its keys
		// into the two fresh children referenced by separator.left/right.
		t.root.setIsRoot(false)
		promoted.setResident(promotedNode)
		appendUnique(&saveQueue, promoted)
		newRoot = promoted
	}

	if err := t.flush(saveQueue); err != nil {
		return err
	}

	t.root = newRoot
	return t.writeMetadata()
}

// Find looks up value with no writer-monitor acquisition, per spec §4.6.
func (t *BTree[T]) Find(value T) (T, bool, error) {
	root, err := t.root.node()
	if err != nil {
		var zero T
		return zero, false, err
	}
	return root.find(value)
}

// Delete marks every key equal to value as deleted, persisting each
// touched node. It returns how many keys were marked.
func (t *BTree[T]) Delete(value T) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	root, err := t.root.node()
	if err != nil {
		return 0, err
	}

	var saveQueue []*NodeRef[T]
	count, err := root.delete(value, &saveQueue)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if err := t.flush(saveQueue); err != nil {
		return 0, err
	}
	return count, nil
}

// Iterate returns a lazy in-order Iterator over the tree, capturing the
// current root per spec §4.6's "Lookup / iteration" note.
func (t *BTree[T]) Iterate() *Iterator[T] {
	return newIterator[T](t.root)
}

// CacheLen reports how many nodes are currently resident in the cache,
// for tests asserting the bound from spec §8's cache-eviction property.
func (t *BTree[T]) CacheLen() int {
	return t.cache.Len()
}
