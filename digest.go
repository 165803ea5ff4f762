package tar

import (
	"io"

	"github.com/opencontainers/go-digest"
)

// digestAlgorithm names a content-hash algorithm accepted by Entry.Digest.
// It is a thin rename of digest.Algorithm so callers of this package never
// need to import opencontainers/go-digest themselves just to call Digest.
type digestAlgorithm = digest.Algorithm

// Supported digest algorithms, re-exported from opencontainers/go-digest the
// way meigma-blob and opencontainers-umoci reference them when verifying or
// addressing a tar-stream layer by content hash.
const (
	DigestSHA256 = digest.SHA256
	DigestSHA512 = digest.SHA512
)

// digestEntry hashes r's remaining logical data with algo, matching the
// digest.Algorithm.FromReader pattern OCI content-addressed storage code
// commonly uses when verifying or naming a blob by its content hash.
func digestEntry(r io.Reader, algo digestAlgorithm) (string, error) {
	if !algo.Available() {
		return "", newErrorf(KindUnsupportedFeature, "digest algorithm %q is not available", algo)
	}
	d, err := algo.FromReader(r)
	if err != nil {
		return "", wrapError(KindIOError, err, "computing entry digest")
	}
	return d.String(), nil
}
