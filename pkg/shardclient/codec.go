package shardclient

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/quiverdb/quiver/pkg/types"
)

// ContentTypeBinary selects the length-prefixed binary encoding for
// search results. JSON remains the default.
const ContentTypeBinary = "application/x-quiver-results"

// Binary result list layout:
//
//	<uvarint count>
//	repeat count times:
//	  <float64 distance><float64 similarity>
//	  <uvarint id><int64 created_at_millis>
//	  <uvarint dim><dim x float32 embedding>
//	  <uvarint len><len bytes database_id utf8>
//	  <uvarint len><len bytes original_data>
//
// Fixed-width fields are big-endian.

const maxResultCount = 1 << 20

// DecodeResults reads a binary-encoded search result list
func DecodeResults(r io.Reader) ([]types.SearchResult, error) {
	br := bufio.NewReader(r)

	count, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read result count: %w", err)
	}
	if count > maxResultCount {
		return nil, fmt.Errorf("result count %d exceeds limit", count)
	}

	results := make([]types.SearchResult, 0, count)
	for i := uint64(0); i < count; i++ {
		var res types.SearchResult

		if res.Distance, err = readFloat64(br); err != nil {
			return nil, fmt.Errorf("result %d: distance: %w", i, err)
		}
		if res.Similarity, err = readFloat64(br); err != nil {
			return nil, fmt.Errorf("result %d: similarity: %w", i, err)
		}

		id, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, fmt.Errorf("result %d: id: %w", i, err)
		}
		res.Vector.ID = int64(id)

		var createdAt uint64
		if err := binary.Read(br, binary.BigEndian, &createdAt); err != nil {
			return nil, fmt.Errorf("result %d: created_at: %w", i, err)
		}
		res.Vector.CreatedAt = int64(createdAt)

		dim, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, fmt.Errorf("result %d: dimension: %w", i, err)
		}
		if dim > maxResultCount {
			return nil, fmt.Errorf("result %d: dimension %d exceeds limit", i, dim)
		}
		res.Vector.Embedding = make([]float32, dim)
		for j := uint64(0); j < dim; j++ {
			var bits uint32
			if err := binary.Read(br, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("result %d: embedding[%d]: %w", i, j, err)
			}
			res.Vector.Embedding[j] = math.Float32frombits(bits)
		}

		dbID, err := readBytes(br)
		if err != nil {
			return nil, fmt.Errorf("result %d: database_id: %w", i, err)
		}
		res.Vector.DatabaseID = string(dbID)

		if res.Vector.OriginalData, err = readBytes(br); err != nil {
			return nil, fmt.Errorf("result %d: original_data: %w", i, err)
		}

		results = append(results, res)
	}

	return results, nil
}

// EncodeResults writes a search result list in the binary encoding
func EncodeResults(w io.Writer, results []types.SearchResult) error {
	bw := bufio.NewWriter(w)

	writeUvarint(bw, uint64(len(results)))
	for i := range results {
		res := &results[i]

		if err := binary.Write(bw, binary.BigEndian, math.Float64bits(res.Distance)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, math.Float64bits(res.Similarity)); err != nil {
			return err
		}

		writeUvarint(bw, uint64(res.Vector.ID))
		if err := binary.Write(bw, binary.BigEndian, uint64(res.Vector.CreatedAt)); err != nil {
			return err
		}

		writeUvarint(bw, uint64(len(res.Vector.Embedding)))
		for _, f := range res.Vector.Embedding {
			if err := binary.Write(bw, binary.BigEndian, math.Float32bits(f)); err != nil {
				return err
			}
		}

		writeUvarint(bw, uint64(len(res.Vector.DatabaseID)))
		if _, err := bw.WriteString(res.Vector.DatabaseID); err != nil {
			return err
		}
		writeUvarint(bw, uint64(len(res.Vector.OriginalData)))
		if _, err := bw.Write(res.Vector.OriginalData); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func readFloat64(r io.Reader) (float64, error) {
	var bits uint64
	if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func readBytes(br *bufio.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if n > maxResultCount {
		return nil, fmt.Errorf("length %d exceeds limit", n)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeUvarint(bw *bufio.Writer, v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	// Write errors on the buffered writer surface at Flush
	bw.Write(buf[:n])
}
