package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// GetVectors returns the cached embeddings for the given text hashes under
// model, keyed by hash. Missing hashes are absent from the result.
func (s *Store) GetVectors(model string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	// Stay well under SQLite's bound-parameter limit.
	const batch = 500
	for start := 0; start < len(hashes); start += batch {
		chunk := hashes[start:min(start+batch, len(hashes))]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, model)
		for _, h := range chunk {
			args = append(args, h)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := s.db.Query(`SELECT text_hash, embedding FROM assistant_vectors
			WHERE model = ? AND text_hash IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("querying vectors: %w", err)
		}
		for rows.Next() {
			var hash string
			var blob []byte
			if err := rows.Scan(&hash, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning vector: %w", err)
			}
			vec, err := decodeFloat32s(blob)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("decoding vector %s: %w", hash, err)
			}
			out[hash] = vec
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PutVectors stores embeddings, replacing any with the same model and hash.
func (s *Store) PutVectors(vectors []AssistantVector) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning vector transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO assistant_vectors
		(model, text_hash, assistant_id, embedding, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing vector insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, v := range vectors {
		if _, err := stmt.Exec(v.Model, v.TextHash, v.AssistantID, encodeFloat32s(v.Embedding), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting vector for %s: %w", v.AssistantID, err)
		}
	}
	return tx.Commit()
}

// PruneVectors deletes vectors of model whose hash is not in keep.
func (s *Store) PruneVectors(model string, keep []string) (int64, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, h := range keep {
		keepSet[h] = struct{}{}
	}

	rows, err := s.db.Query(`SELECT text_hash FROM assistant_vectors WHERE model = ?`, model)
	if err != nil {
		return 0, fmt.Errorf("listing vectors: %w", err)
	}
	var stale []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keepSet[h]; !ok {
			stale = append(stale, h)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, h := range stale {
		res, err := s.db.Exec(`DELETE FROM assistant_vectors WHERE model = ? AND text_hash = ?`, model, h)
		if err != nil {
			return deleted, fmt.Errorf("deleting vector %s: %w", h, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
