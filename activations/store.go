//  Copyright 2019 Marius Ackerman
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package activations

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	xxhash "github.com/OneOfOne/xxhash"
	"github.com/dgraph-io/badger/v3"
)

// ErrNotFound is returned by Store.Get for an unknown key.
var ErrNotFound = errors.New("activations not found")

/*
Store is a Badger backed activation cache shared by many recordings. Keys
are derived from the audio samples and the analysis settings, see Key.
A Store is safe for concurrent use.
*/
type Store struct {
	db *badger.DB
}

// Open opens or creates the store in dir. An empty dir gives an in-memory
// store.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open activation store %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

/*
Key returns the cache key of the activations of samples at sampleRate
computed with the settings described by fingerprint.
*/
func Key(samples []float64, sampleRate int, fingerprint string) []byte {
	h := xxhash.New64()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(sampleRate))
	h.Write(b[:])
	for _, v := range samples {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		h.Write(b[:])
	}
	h.Write([]byte(fingerprint))

	key := append([]byte("act/"), make([]byte, 8)...)
	binary.BigEndian.PutUint64(key[4:], h.Sum64())
	return key
}

// Get returns the activations stored under key.
func (s *Store) Get(key []byte) (*Activations, error) {
	var buf []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Unmarshal(buf)
}

// Put stores a under key.
func (s *Store) Put(key []byte, a *Activations) error {
	buf, err := a.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}
