package scrape

import (
	"math/rand"
	"time"
)

// RecycleThreshold is the longest pause the browser is kept open for.
const RecycleThreshold = 15 * time.Minute

type PacerConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration

	MinBatch int
	MaxBatch int

	MinPause time.Duration
	MaxPause time.Duration
}

// Pause is a break between two batches. Recycle is set when the pause is long
// enough that the browser should be closed for its duration.
type Pause struct {
	Duration time.Duration
	Recycle  bool
}

// Pacer spaces page loads out like a human reader would: a short random delay
// before every page, and a long random pause after every batch of pages.
type Pacer struct {
	cfg  PacerConfig
	rand *rand.Rand

	batchSize int
	inBatch   int
}

func NewPacer(cfg PacerConfig, rng *rand.Rand) *Pacer {
	p := &Pacer{cfg: cfg, rand: rng}
	p.Reset()
	return p
}

// Reset draws a new batch size and starts counting from zero.
func (p *Pacer) Reset() {
	p.batchSize = p.intBetween(p.cfg.MinBatch, p.cfg.MaxBatch)
	p.inBatch = 0
}

func (p *Pacer) BatchSize() int {
	return p.batchSize
}

// PageDelay is the wait before loading a page, in whole seconds.
func (p *Pacer) PageDelay() time.Duration {
	return p.secondsBetween(p.cfg.MinDelay, p.cfg.MaxDelay)
}

// Advance counts one page. When the batch is complete it returns the pause to
// take and starts a new batch.
func (p *Pacer) Advance() (Pause, bool) {
	p.inBatch++
	if p.inBatch < p.batchSize {
		return Pause{}, false
	}

	d := p.secondsBetween(p.cfg.MinPause, p.cfg.MaxPause)
	p.Reset()
	return Pause{Duration: d, Recycle: d > RecycleThreshold}, true
}

func (p *Pacer) intBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + p.rand.Intn(hi-lo+1)
}

func (p *Pacer) secondsBetween(lo, hi time.Duration) time.Duration {
	return time.Duration(p.intBetween(int(lo/time.Second), int(hi/time.Second))) * time.Second
}
