package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/twmb/murmur3"
)

// Layout: 41 bits of milliseconds since Epoch, 10 bits of worker, 12 bits of sequence.
const (
	Epoch int64 = 1735689600000 // 2025-01-01T00:00:00Z

	workerBits   = 10
	sequenceBits = 12

	MaxWorkerID  = -1 ^ (-1 << workerBits)
	sequenceMask = -1 ^ (-1 << sequenceBits)
	workerShift  = sequenceBits
	timeShift    = sequenceBits + workerBits

	// maxBackwardDrift is how far the clock may step back before NextID
	// gives up instead of waiting it out.
	maxBackwardDrift = 10 * time.Millisecond
)

var (
	ErrInvalidWorkerID     = errors.New("snowflake: worker id out of range")
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
)

// Generator hands out time-ordered int64 ids. Ids from one generator are
// strictly increasing, so sorting messages by id sorts them by creation.
type Generator struct {
	mu       sync.Mutex
	workerID int64
	sequence int64
	lastMs   int64
	now      func() time.Time
}

func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{workerID: workerID, lastMs: -1, now: time.Now}, nil
}

// WorkerIDFor maps a node name such as "node-1" onto the worker id range.
func WorkerIDFor(nodeID string) int64 {
	return int64(murmur3.StringSum32(nodeID) % (MaxWorkerID + 1))
}

func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		drift := time.Duration(g.lastMs-ms) * time.Millisecond
		if drift > maxBackwardDrift {
			return 0, ErrClockMovedBackwards
		}
		ms = g.waitUntil(g.lastMs)
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			ms = g.waitUntil(g.lastMs + 1)
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return (ms-Epoch)<<timeShift | g.workerID<<workerShift | g.sequence, nil
}

// NextString is NextID formatted in base 10, the form ids take in the API.
func (g *Generator) NextString() (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (g *Generator) waitUntil(ms int64) int64 {
	now := g.now().UnixMilli()
	for now < ms {
		time.Sleep(time.Duration(ms-now) * time.Millisecond)
		now = g.now().UnixMilli()
	}
	return now
}

// Time returns the creation time encoded in id.
func Time(id int64) time.Time {
	return time.UnixMilli(id>>timeShift + Epoch)
}

// Worker returns the worker id encoded in id.
func Worker(id int64) int64 {
	return id >> workerShift & MaxWorkerID
}
