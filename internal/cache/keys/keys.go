// Package keys builds the Redis key layout of the document backend.
package keys

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/spatial-entities/internal/core/geom"
)

// Doc holds the serialized entity body.
func Doc(layer string, id uint64) string {
	return "doc:" + Layer(layer) + ":" + strconv.FormatUint(id, 10)
}

// Bounds holds the envelope the cell index was built from.
func Bounds(layer string, id uint64) string {
	return "bounds:" + Layer(layer) + ":" + strconv.FormatUint(id, 10)
}

// IDs is the set of every stored id.
func IDs(layer string) string {
	return "ids:" + Layer(layer)
}

// Cell is the set of ids whose bounds touch one H3 cell.
func Cell(layer string, res int, cell string) string {
	return "cell:" + Layer(layer) + ":" + strconv.Itoa(res) + ":" + strings.TrimSpace(cell)
}

// Wide is the set of ids too large to index by cell; every query reads it.
func Wide(layer string, res int) string {
	return "wide:" + Layer(layer) + ":" + strconv.Itoa(res)
}

// EnvelopeHash identifies an envelope at a resolution for covering caches.
func EnvelopeHash(env geom.Envelope, res int) uint64 {
	var buf [36]byte
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(env.MinX))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(env.MinY))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(env.MaxX))
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(env.MaxY))
	binary.LittleEndian.PutUint32(buf[32:], uint32(res))
	return xxhash.Sum64(buf[:])
}

// Layer normalizes a layer name for use inside a key.
func Layer(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// separators and non-ASCII become '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
