// Package hasher computes content digests of cache files.
//
// Files are streamed through the digester in fixed-size chunks so memory use does
// not grow with the file size. Digests are sha256, encoded as lowercase hex, which
// is the encoding the manifest uses.
package hasher

import (
	_ "crypto/sha256" // registers the sha256 implementation used by go-digest
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/opencontainers/go-digest"
)

// ChunkSize is the read size used when streaming a file through the digester.
const ChunkSize = 64 << 10

// Algorithm is the digest algorithm used for manifest entries.
const Algorithm = digest.SHA256

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, ChunkSize)
		return &b
	},
}

// Sum is the digest and byte count of one file.
type Sum struct {
	Digest digest.Digest
	Size   int64
}

// Hex returns the lowercase hex encoding of the digest.
func (s Sum) Hex() string {
	return s.Digest.Encoded()
}

// Matches reports whether the sum equals the expected digest.
func (s Sum) Matches(expected digest.Digest) bool {
	return s.Digest == expected
}

// Digest streams the file at path and returns its digest and size.
func Digest(path string) (Sum, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sum{}, err
	}
	defer func() { _ = f.Close() }()
	return DigestReader(f)
}

// DigestReader streams r to EOF in ChunkSize reads.
func DigestReader(r io.Reader) (Sum, error) {
	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)
	buf := *bp

	digester := Algorithm.Digester()
	h := digester.Hash()
	var size int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
			size += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Sum{}, pkgerrors.Wrap(err, "hashing")
		}
	}
	return Sum{Digest: digester.Digest(), Size: size}, nil
}

// ParseExpected converts a manifest hash into a digest. Hashes that are not a
// valid sha256 hex encoding are rejected with ErrInvalidDigest.
func ParseExpected(hexHash string) (digest.Digest, error) {
	d := digest.NewDigestFromEncoded(Algorithm, strings.ToLower(strings.TrimSpace(hexHash)))
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("%q: %w", hexHash, pkgerrors.ErrInvalidDigest)
	}
	return d, nil
}
