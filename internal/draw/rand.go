package draw

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mathrand "math/rand"
)

// Sampler picks k distinct indexes uniformly from [0, n), i.e. uniformly over
// all subsets of size k with no order bias. The coordinator receives one as a
// dependency so production uses the crypto source and tests inject a seeded
// one.
type Sampler interface {
	Sample(n, k int) ([]int, error)
}

// NewCryptoSampler returns the production sampler backed by crypto/rand.
func NewCryptoSampler() Sampler {
	return cryptoSampler{}
}

type cryptoSampler struct{}

func (cryptoSampler) Sample(n, k int) ([]int, error) {
	return partialShuffle(n, k, func(limit int) (int, error) {
		v, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
		if err != nil {
			return 0, err
		}
		return int(v.Int64()), nil
	})
}

// NewSeededSampler returns a deterministic sampler for tests.
func NewSeededSampler(seed int64) Sampler {
	return &seededSampler{rng: mathrand.New(mathrand.NewSource(seed))}
}

type seededSampler struct{ rng *mathrand.Rand }

func (s *seededSampler) Sample(n, k int) ([]int, error) {
	return partialShuffle(n, k, func(limit int) (int, error) {
		return s.rng.Intn(limit), nil
	})
}

// partialShuffle runs the first k steps of a Fisher-Yates shuffle over
// [0, n) and returns the shuffled prefix.
func partialShuffle(n, k int, intn func(int) (int, error)) ([]int, error) {
	if k < 0 || n < 0 || k > n {
		return nil, fmt.Errorf("cannot sample %d of %d", k, n)
	}
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	for i := 0; i < k; i++ {
		j, err := intn(n - i)
		if err != nil {
			return nil, fmt.Errorf("random source failed: %w", err)
		}
		indexes[i], indexes[i+j] = indexes[i+j], indexes[i]
	}
	return indexes[:k], nil
}
