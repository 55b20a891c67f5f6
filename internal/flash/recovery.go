// Package flash's recovery half: a golden-image archive that the dual-bank
// fallback policy (bank.go) consults when both banks fail their health
// check, or when an operator wants to reflash a known-good image instead of
// trusting whatever the protocol session staged. It is grounded on the
// teacher's crypto package habit of pairing a signature check with a
// content hash before trusting external bytes, adapted here from the
// teacher's secp256k1-based transaction signing to minisign's simpler
// sign-a-blob model (go-minisign is the only signing library retrieved for
// standalone artifact verification, rather than transaction signing).
package flash

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/golang/snappy"
	"github.com/jedisct1/go-minisign"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"golang.org/x/crypto/blake2b"

	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// Archive stores verified golden images, keyed by their blake2b-256 hash,
// in an embedded leveldb instance.
type Archive struct {
	db *leveldb.DB
}

// OpenArchive opens (creating if needed) a leveldb archive at path. An
// empty path opens an in-memory archive, used by tests and the simulator
// CLI.
func OpenArchive(path string) (*Archive, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, vmerr.Wrap(vmerr.FlashOperation, err, "open golden-image archive")
	}
	return &Archive{db: db}, nil
}

// Close releases the underlying leveldb handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// hashOf returns the blake2b-256 digest of image.
func hashOf(image []byte) ([32]byte, error) {
	return blake2b.Sum256(image), nil
}

// Store verifies image against a minisign signature and public key, and on
// success archives it under its content hash, returning that hash as the
// recovery key.
func (a *Archive) Store(image []byte, signature, publicKey string) ([32]byte, error) {
	var zero [32]byte
	pub, err := minisign.NewPublicKey(publicKey)
	if err != nil {
		return zero, vmerr.Wrap(vmerr.FlashOperation, err, "parse minisign public key")
	}
	sig, err := minisign.DecodeSignature(signature)
	if err != nil {
		return zero, vmerr.Wrap(vmerr.FlashOperation, err, "decode minisign signature")
	}
	ok, err := pub.Verify(image, sig)
	if err != nil || !ok {
		return zero, vmerr.Newf(vmerr.FlashOperation, "golden image failed signature verification")
	}

	hash, _ := hashOf(image)
	if err := a.db.Put(hash[:], snappy.Encode(nil, image), nil); err != nil {
		return zero, vmerr.Wrap(vmerr.FlashOperation, err, "archive golden image")
	}
	return hash, nil
}

// Fetch retrieves a previously stored golden image by its blake2b-256 hash
// and re-verifies the hash matches before returning, guarding against
// on-disk corruption of the archive itself.
func (a *Archive) Fetch(hash [32]byte) ([]byte, error) {
	packed, err := a.db.Get(hash[:], nil)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.FlashOperation, err, "fetch golden image")
	}
	image, err := snappy.Decode(nil, packed)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.FlashOperation, err, "decompress golden image")
	}
	got, _ := hashOf(image)
	if !bytes.Equal(got[:], hash[:]) {
		return nil, vmerr.Newf(vmerr.FlashOperation, "archived image hash mismatch")
	}
	return image, nil
}

// BankFile backs one logical flash bank with an mmap'd regular file, used
// by the host simulator CLI so a "flash bank" survives process restarts the
// same way real flash does. Production targets use the platform's real
// FlashController instead; this exists purely for the sim harness.
type BankFile struct {
	f   *os.File
	mm  mmap.MMap
	len int
}

// OpenBankFile opens or creates a size-byte file at path and maps it.
func OpenBankFile(path string, size int) (*BankFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.FlashOperation, err, "open bank file")
	}
	if fi, statErr := f.Stat(); statErr == nil && fi.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, vmerr.Wrap(vmerr.FlashOperation, err, "grow bank file")
		}
	}
	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, vmerr.Wrap(vmerr.FlashOperation, err, "mmap bank file")
	}
	return &BankFile{f: f, mm: mm, len: size}, nil
}

// ReadFlash satisfies Reader directly against the mapped file.
func (b *BankFile) ReadFlash(addr uint32, n int) ([]byte, error) {
	if int(addr)+n > b.len {
		return nil, vmerr.Newf(vmerr.FlashOperation, "read past bank end")
	}
	out := make([]byte, n)
	copy(out, b.mm[addr:int(addr)+n])
	return out, nil
}

// WriteAt writes data into the mapped region without a page-erase /
// doubleword discipline — used only to seed a bank file with a recovered
// golden image, never by the staging engine itself.
func (b *BankFile) WriteAt(addr uint32, data []byte) error {
	if int(addr)+len(data) > b.len {
		return vmerr.Newf(vmerr.FlashOperation, "write past bank end")
	}
	copy(b.mm[addr:], data)
	return nil
}

// Sync flushes the mapped pages to disk.
func (b *BankFile) Sync() error {
	return b.mm.Flush()
}

// Close unmaps and closes the backing file.
func (b *BankFile) Close() error {
	if err := b.mm.Unmap(); err != nil {
		return err
	}
	return b.f.Close()
}
