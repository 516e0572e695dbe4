// Package packer splits a rendered report into channel-size-bounded chunks
// without splitting an atomic unit across a boundary.
package packer

import (
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

// Unit is one atomic content block (a rendered word-group section or item
// line). It is never split across two output chunks.
type Unit struct {
	Text string
}

func (u Unit) Size() int { return len(u.Text) }

// Limits parameterize packing per delivery channel.
type Limits struct {
	// MaxBytes is the channel's message ceiling.
	MaxBytes int
	// HeaderBytes is reserved in every chunk for the header/footer the
	// renderer re-adds around each message.
	HeaderBytes int
}

// Pack greedily accumulates units into chunks so that
// chunkSize + HeaderBytes <= MaxBytes. When the next unit would overflow,
// the current chunk is closed and the unit starts a new one. A single unit
// larger than the budget becomes its own oversized chunk: correctness over
// strict limit compliance, logged as a warning, never dropped, never split.
// Concatenating the chunks in order reproduces the input order.
func Pack(units []Unit, limits Limits, log logx.Logger) [][]Unit {
	if len(units) == 0 {
		return nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	budget := limits.MaxBytes - limits.HeaderBytes
	if limits.MaxBytes <= 0 {
		// No ceiling configured: one chunk.
		return [][]Unit{append([]Unit(nil), units...)}
	}

	var chunks [][]Unit
	var current []Unit
	size := 0

	for _, u := range units {
		us := u.Size()
		if us > budget {
			log.Warn("atomic unit exceeds channel budget, emitting oversized chunk",
				logx.Int("unit_bytes", us), logx.Int("budget_bytes", budget))
		}
		if len(current) > 0 && size+us > budget {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, u)
		size += us
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// Join concatenates a chunk's units back into one message body.
func Join(chunk []Unit) string {
	n := 0
	for _, u := range chunk {
		n += len(u.Text)
	}
	b := make([]byte, 0, n)
	for _, u := range chunk {
		b = append(b, u.Text...)
	}
	return string(b)
}
