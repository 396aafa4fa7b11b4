package storage

import (
	"fmt"
	"os"
)

// Backend is the raw per-file-number I/O surface a Store allocates slots
// on top of. Grounded on simplejsondb/dbio.DataFile: one logical "file"
// identified by a small integer, opened/seeked/closed on every call so
// that resource release never depends on a long-lived handle.
type Backend interface {
	ReadAt(fileNumber uint64, offset int64, buf []byte) error
	WriteAt(fileNumber uint64, offset int64, buf []byte) error
	Size(fileNumber uint64) (int64, error)
}

// MetaBackend is the separate I/O surface for the "<base>.metadata" file
// (spec §6), kept apart from the fileNumber-indexed node storage so a
// Backend never has to reserve a fake file number for it.
type MetaBackend interface {
	ReadMeta(offset int64, buf []byte) error
	WriteMeta(offset int64, buf []byte) error
	SizeMeta() (int64, error)
}

// OSBackend is the production Backend, mapping file number 0 to basePath
// itself and file number n>0 to "<basePath>.<n>", per the on-disk layout
// in spec §6.
type OSBackend struct {
	basePath string
}

func NewOSBackend(basePath string) *OSBackend {
	return &OSBackend{basePath: basePath}
}

func (b *OSBackend) pathFor(fileNumber uint64) string {
	if fileNumber == 0 {
		return b.basePath
	}
	return fmt.Sprintf("%s.%d", b.basePath, fileNumber)
}

func (b *OSBackend) ReadAt(fileNumber uint64, offset int64, buf []byte) error {
	f, err := os.OpenFile(b.pathFor(fileNumber), os.O_RDONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.ReadAt(buf, offset); err != nil {
		return err
	}
	return nil
}

func (b *OSBackend) WriteAt(fileNumber uint64, offset int64, buf []byte) error {
	f, err := os.OpenFile(b.pathFor(fileNumber), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(buf, offset); err != nil {
		return err
	}
	return nil
}

func (b *OSBackend) Size(fileNumber uint64) (int64, error) {
	info, err := os.Stat(b.pathFor(fileNumber))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

func (b *OSBackend) metadataPath() string {
	return b.basePath + ".metadata"
}

func (b *OSBackend) ReadMeta(offset int64, buf []byte) error {
	f, err := os.OpenFile(b.metadataPath(), os.O_RDONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.ReadAt(buf, offset); err != nil {
		return err
	}
	return nil
}

func (b *OSBackend) WriteMeta(offset int64, buf []byte) error {
	f, err := os.OpenFile(b.metadataPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(buf, offset); err != nil {
		return err
	}
	return nil
}

func (b *OSBackend) SizeMeta() (int64, error) {
	info, err := os.Stat(b.metadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// FakeBackend is an in-memory Backend for tests, grounded on
// test_utils.InMemoryDataFile: it never touches the filesystem, which
// keeps storage- and btreestore-level tests fast and hermetic.
type FakeBackend struct {
	files map[uint64][]byte
	meta  []byte
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{files: make(map[uint64][]byte)}
}

func (b *FakeBackend) grow(fileNumber uint64, size int64) []byte {
	data := b.files[fileNumber]
	if int64(len(data)) < size {
		grown := make([]byte, size)
		copy(grown, data)
		data = grown
		b.files[fileNumber] = data
	}
	return data
}

func (b *FakeBackend) ReadAt(fileNumber uint64, offset int64, buf []byte) error {
	data := b.files[fileNumber]
	if offset+int64(len(buf)) > int64(len(data)) {
		return fmt.Errorf("storage: fake backend short read at file=%d offset=%d len=%d size=%d", fileNumber, offset, len(buf), len(data))
	}
	copy(buf, data[offset:offset+int64(len(buf))])
	return nil
}

func (b *FakeBackend) WriteAt(fileNumber uint64, offset int64, buf []byte) error {
	data := b.grow(fileNumber, offset+int64(len(buf)))
	copy(data[offset:], buf)
	return nil
}

func (b *FakeBackend) Size(fileNumber uint64) (int64, error) {
	return int64(len(b.files[fileNumber])), nil
}

func (b *FakeBackend) growMeta(size int64) {
	if int64(len(b.meta)) < size {
		grown := make([]byte, size)
		copy(grown, b.meta)
		b.meta = grown
	}
}

func (b *FakeBackend) ReadMeta(offset int64, buf []byte) error {
	if offset+int64(len(buf)) > int64(len(b.meta)) {
		return fmt.Errorf("storage: fake backend short read of metadata at offset=%d len=%d size=%d", offset, len(buf), len(b.meta))
	}
	copy(buf, b.meta[offset:offset+int64(len(buf))])
	return nil
}

func (b *FakeBackend) WriteMeta(offset int64, buf []byte) error {
	b.growMeta(offset + int64(len(buf)))
	copy(b.meta[offset:], buf)
	return nil
}

func (b *FakeBackend) SizeMeta() (int64, error) {
	return int64(len(b.meta)), nil
}
