package swcache

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
)

type dumpRecord struct {
	Generation string
	Key        string
	Entry      entry
}

// Dump saves all generations and their entries, number of processed entries is returned.
//
// Empty generations are saved too, so that Restore keeps generation names.
func (s *MemoryStorage) Dump(w io.Writer) (int, error) {
	encoder := gob.NewEncoder(w)
	n := 0

	names, err := s.Keys(context.Background())
	if err != nil {
		return 0, err
	}

	for _, name := range names {
		s.RLock()
		c, ok := s.generations[name]
		s.RUnlock()

		if !ok {
			continue
		}

		if err := encoder.Encode(dumpRecord{Generation: name}); err != nil {
			return n, err
		}

		for i := range c.buckets {
			b := &c.buckets[i]

			b.RLock()
			records := make([]dumpRecord, 0, len(b.data))

			for k, v := range b.data {
				records = append(records, dumpRecord{Generation: name, Key: k, Entry: v})
			}
			b.RUnlock()

			for _, r := range records {
				if err := encoder.Encode(r); err != nil {
					return n, err
				}

				n++
			}
		}
	}

	return n, nil
}

// Restore loads generations from a dump and returns number of processed entries.
func (s *MemoryStorage) Restore(r io.Reader) (int, error) {
	decoder := gob.NewDecoder(r)
	ctx := context.Background()
	n := 0

	for {
		var rec dumpRecord

		err := decoder.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return n, err
		}

		c := s.open(ctx, rec.Generation)

		if rec.Key == "" {
			continue
		}

		b := c.bucket(rec.Key)
		b.Lock()
		b.data[rec.Key] = rec.Entry
		b.Unlock()

		n++
	}

	s.log.Info(ctx, "restored cache storage", "entries", n)

	return n, nil
}
