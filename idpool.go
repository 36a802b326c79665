package jaegerz

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// IDSource fills buf with candidate ids. Zero values are replaced by the
// caller, so a source need not avoid them.
type IDSource func(buf []uint64) error

// CryptoIDSource draws ids from crypto/rand.
func CryptoIDSource(buf []uint64) error {
	raw := make([]byte, 8*len(buf))
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	for i := range buf {
		buf[i] = binary.BigEndian.Uint64(raw[i*8:])
	}
	return nil
}

// fallbackSeq feeds ids when a source fails or yields zero.
var fallbackSeq atomic.Uint64

func init() {
	fallbackSeq.Store(uint64(time.Now().UnixNano()))
}

// fillIDs writes non-zero ids into buf.
func fillIDs(source IDSource, buf []uint64) {
	if err := source(buf); err != nil {
		clear(buf)
	}
	for i, id := range buf {
		for id == 0 {
			id = splitmix64(fallbackSeq.Add(0x9e3779b97f4a7c15))
		}
		buf[i] = id
	}
}

func splitmix64(x uint64) uint64 {
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// randomID returns one non-zero id without a pool.
func randomID() uint64 {
	var one [1]uint64
	fillIDs(CryptoIDSource, one[:])
	return one[0]
}

// IDPool hands out non-zero 64-bit ids from a buffer. A background goroutine
// refills the buffer in batches whenever Get drains it to a quarter full.
type IDPool struct {
	source IDSource
	ids    chan uint64
	low    chan struct{}
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
	batch  int
}

// NewIDPool creates a pool holding up to capacity ids drawn from source.
// A nil source means CryptoIDSource.
func NewIDPool(capacity int, source IDSource) *IDPool {
	if capacity < 1 {
		capacity = 1
	}
	if source == nil {
		source = CryptoIDSource
	}
	p := &IDPool{
		source: source,
		ids:    make(chan uint64, capacity),
		low:    make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		batch:  min(capacity, 64),
	}
	go p.refill()
	return p
}

// Get returns a buffered id, or draws one inline when the buffer is empty.
func (p *IDPool) Get() uint64 {
	select {
	case id := <-p.ids:
		if len(p.ids) <= cap(p.ids)/4 {
			p.signalLow()
		}
		return id
	default:
		p.signalLow()
		var one [1]uint64
		fillIDs(p.source, one[:])
		return one[0]
	}
}

func (p *IDPool) signalLow() {
	select {
	case p.low <- struct{}{}:
	default:
	}
}

// refill tops the buffer up, then sleeps until it runs low or Close.
// It is the only sender on ids, so free space never shrinks under it.
func (p *IDPool) refill() {
	defer close(p.done)
	buf := make([]uint64, p.batch)
	for {
		for free := cap(p.ids) - len(p.ids); free > 0; free = cap(p.ids) - len(p.ids) {
			batch := buf[:min(len(buf), free)]
			fillIDs(p.source, batch)
			for _, id := range batch {
				select {
				case p.ids <- id:
				case <-p.stopCh:
					return
				}
			}
		}
		select {
		case <-p.low:
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine and waits for it to exit. Get keeps
// working afterwards.
func (p *IDPool) Close() {
	p.once.Do(func() {
		close(p.stopCh)
	})
	<-p.done
}
