package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets through n of every d debug events. The ratio is packed
// into one word so Set and Allow never take a lock.
type ratioSampler struct {
	ratio atomic.Uint64
	seq   atomic.Uint64
}

func newRatioSampler(n, d int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(n, d)
	return s
}

// Set replaces the ratio. Non-positive values disable sampling.
func (s *ratioSampler) Set(n, d int) {
	if n <= 0 || d <= 0 {
		s.ratio.Store(0)
		s.seq.Store(0)
		return
	}
	n = min(n, d)
	s.ratio.Store(uint64(uint32(n))<<32 | uint64(uint32(d)))
	s.seq.Store(0)
}

// Allow reports whether the next event is kept.
func (s *ratioSampler) Allow() bool {
	packed := s.ratio.Load()
	if packed == 0 {
		return true
	}
	n, d := packed>>32, packed&0xffffffff
	return (s.seq.Add(1)-1)%d < n
}

// parseRatioSpec reads "n/d" or a bare "d" meaning 1/d.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, errN := strconv.Atoi(strings.TrimSpace(num))
		d, errD := strconv.Atoi(strings.TrimSpace(den))
		if errN != nil || errD != nil {
			return 0, 0
		}
		return n, d
	}
	d, err := strconv.Atoi(spec)
	if err != nil || d <= 0 {
		return 0, 0
	}
	return 1, d
}
