// Package shuffle derives the blind strategy-to-slot assignment of a session.
//
// The assignment is recomputed from the bare session seed whenever it is
// needed, so the generator is pinned: a 32-bit Mersenne Twister seeded and
// consumed exactly as CPython's random.seed(int) and random.shuffle do. Files
// produced by the Python generator therefore de-anonymize identically here.
package shuffle

const (
	mtN         = 624
	mtM         = 397
	matrixA     = 0x9908b0df
	upperMask   = 0x80000000
	lowerMask   = 0x7fffffff
	initialSeed = 19650218
)

// Source is an MT19937 generator. It is not safe for concurrent use.
type Source struct {
	mt  [mtN]uint32
	idx int
}

// NewSource seeds a generator from key words, least significant first,
// following init_by_array. An empty key is treated as a single zero word.
func NewSource(key []uint32) *Source {
	if len(key) == 0 {
		key = []uint32{0}
	}
	s := &Source{}
	s.initGenrand(initialSeed)

	i, j := 1, 0
	k := mtN
	if len(key) > k {
		k = len(key)
	}
	for ; k > 0; k-- {
		prev := s.mt[i-1] ^ (s.mt[i-1] >> 30)
		s.mt[i] = (s.mt[i] ^ (prev * 1664525)) + key[j] + uint32(j)
		i++
		j++
		if i >= mtN {
			s.mt[0] = s.mt[mtN-1]
			i = 1
		}
		if j >= len(key) {
			j = 0
		}
	}
	for k = mtN - 1; k > 0; k-- {
		prev := s.mt[i-1] ^ (s.mt[i-1] >> 30)
		s.mt[i] = (s.mt[i] ^ (prev * 1566083941)) - uint32(i)
		i++
		if i >= mtN {
			s.mt[0] = s.mt[mtN-1]
			i = 1
		}
	}
	s.mt[0] = upperMask
	return s
}

func (s *Source) initGenrand(seed uint32) {
	s.mt[0] = seed
	for i := 1; i < mtN; i++ {
		s.mt[i] = 1812433253*(s.mt[i-1]^(s.mt[i-1]>>30)) + uint32(i)
	}
	s.idx = mtN
}

// Uint32 returns the next tempered 32-bit output.
func (s *Source) Uint32() uint32 {
	if s.idx >= mtN {
		s.twist()
	}
	y := s.mt[s.idx]
	s.idx++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

func (s *Source) twist() {
	for k := 0; k < mtN; k++ {
		y := (s.mt[k] & upperMask) | (s.mt[(k+1)%mtN] & lowerMask)
		next := s.mt[(k+mtM)%mtN] ^ (y >> 1)
		if y&1 != 0 {
			next ^= matrixA
		}
		s.mt[k] = next
	}
	s.idx = 0
}

// Bits returns a value with k random bits, 0 < k <= 32, taken from the top
// of one output word.
func (s *Source) Bits(k uint) uint32 {
	return s.Uint32() >> (32 - k)
}

// Below returns a uniform value in [0, n) by rejection sampling on
// bit_length(n) bits. n must be positive and fit in 32 bits.
func (s *Source) Below(n uint32) uint32 {
	k := bitLength(n)
	r := s.Bits(k)
	for r >= n {
		r = s.Bits(k)
	}
	return r
}

func bitLength(n uint32) uint {
	var k uint
	for n > 0 {
		k++
		n >>= 1
	}
	return k
}
