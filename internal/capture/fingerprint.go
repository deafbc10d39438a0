package capture

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint hashes a raw audio clip so redundant deliveries of the same
// buffer can be detected and dropped without reprocessing.
func Fingerprint(audio []byte) string {
	sum := md5.Sum(audio)
	return hex.EncodeToString(sum[:])
}
