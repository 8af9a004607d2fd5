// Package journal captures raw feed frames in pebble so a session can
// be replayed offline. Book state is never persisted; frames are the
// source of truth and replaying them rebuilds everything.
package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/feedcore/pkg/core"
)

// keys: f:<8-byte-big-endian-seq>; value: <kind-byte><raw-frame>
var framePrefix = []byte("f:")

func frameKey(seq uint64) []byte {
	key := make([]byte, len(framePrefix)+8)
	copy(key, framePrefix)
	binary.BigEndian.PutUint64(key[len(framePrefix):], seq)
	return key
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type Journal struct {
	db  *pebble.DB
	seq uint64
}

func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := &Journal{db: db}

	// Resume the sequence after the last appended frame.
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: framePrefix,
		UpperBound: keyUpperBound(framePrefix),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal iterator: %w", err)
	}
	if iter.Last() && iter.Valid() {
		key := iter.Key()
		j.seq = binary.BigEndian.Uint64(key[len(framePrefix):]) + 1
	}
	if err := iter.Close(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Append stores one raw frame. NoSync: losing the tail of a capture on
// crash is fine, stalling the feed is not.
func (j *Journal) Append(kind core.Kind, raw []byte) error {
	val := make([]byte, 1+len(raw))
	val[0] = byte(kind)
	copy(val[1:], raw)

	key := frameKey(j.seq)
	j.seq++
	if err := j.db.Set(key, val, pebble.NoSync); err != nil {
		return fmt.Errorf("append frame: %w", err)
	}
	return nil
}

// Len counts stored frames.
func (j *Journal) Len() (int, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: framePrefix,
		UpperBound: keyUpperBound(framePrefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, nil
}

// Replay walks frames in append order. fn returning an error stops the
// walk and surfaces it.
func (j *Journal) Replay(fn func(kind core.Kind, raw []byte) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: framePrefix,
		UpperBound: keyUpperBound(framePrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) < 1 {
			continue // skip malformed entries
		}
		if err := fn(core.Kind(val[0]), val[1:]); err != nil {
			return err
		}
	}
	return iter.Error()
}
