//go:build debug

package btreestore

import (
	"fmt"
	"io"

	"btreestore/internal/storage"
)

// DumpFile walks every slot in path front-to-back and prints its decoded
// contents, whether or not the slot is still reachable from the current
// root. Supplemented from original_source/BTree.java's
// displayFile()/displayNode() dev diagnostic, which the spec explicitly
// excludes from the core engine — this stays behind a debug build tag
// and is only reachable from cmd/btreestore's dump command so it never
// ships in a production binary.
func DumpFile[T Value[T]](w io.Writer, path string, degree, keySizeBytes int, codec Codec[T]) error {
	backend := storage.NewOSBackend(path)
	t := &BTree[T]{degree: degree, keySizeBytes: keySizeBytes, codec: codec, cache: NewNodeCache[T](0)}

	size, err := backend.Size(0)
	if err != nil {
		return &IOError{Op: "stat dump target", Err: err}
	}

	slot := t.frameSize()
	for offset := int64(0); offset+int64(slot) <= size; offset += int64(slot) {
		buf := make([]byte, slot)
		if err := backend.ReadAt(0, offset, buf); err != nil {
			return &IOError{Op: "read dump slot", Err: err}
		}

		node, err := t.decodeNode(buf, degree, false)
		if err != nil {
			fmt.Fprintf(w, "offset=%d: decode error: %v\n", offset, err)
			continue
		}
		fmt.Fprintf(w, "offset=%d isRoot=%t keys=%d\n", offset, node.isRoot, node.KeyCount())
		for i := 0; i < node.KeyCount(); i++ {
			k := node.KeyAt(i)
			fmt.Fprintf(w, "  key[%d]=%v deleted=%t left=%s right=%s\n", i, k.Value(), k.Deleted(), positionString(k.Left()), positionString(k.Right()))
		}
	}
	return nil
}

func positionString[T Value[T]](ref *NodeRef[T]) string {
	if ref == nil {
		return "<absent>"
	}
	pos, ok := ref.Position()
	if !ok {
		return "<unsaved>"
	}
	return pos.String()
}
