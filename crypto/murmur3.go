package crypto

import "github.com/spaolacci/murmur3"

// murmur3Sum32 wraps the murmur3 package's seeded 32-bit sum so hash.go
// doesn't need to import it directly.
func murmur3Sum32(key []byte, seed uint32) uint32 {
	return murmur3.Sum32WithSeed(key, seed)
}
