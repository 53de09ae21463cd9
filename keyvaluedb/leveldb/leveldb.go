// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package leveldb

import (
	"bytes"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
)

type LevelDB struct {
	db      *leveldb.DB
	encoder keyvaluedb.EncodeFn
	decoder keyvaluedb.DecodeFn
}

// New 開啟（或建立）dir 下的 leveldb。
func New(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, errs.Wrap(err, "leveldb open failed")
	}
	return &LevelDB{db: db, encoder: keyvaluedb.Encode, decoder: keyvaluedb.Decode}, nil
}

func (db *LevelDB) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	data, err := db.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(err, "leveldb read failed")
	}
	return true, db.decoder(data, v)
}

func (db *LevelDB) Write(key []byte, v any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return err
	}
	b, err := db.encoder(v)
	if err != nil {
		return err
	}
	if err := db.db.Put(key, b, &opt.WriteOptions{Sync: true}); err != nil {
		return errs.Wrap(err, "leveldb write failed")
	}
	return nil
}

func (db *LevelDB) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if err := db.db.Delete(key, &opt.WriteOptions{Sync: true}); err != nil {
		return errs.Wrap(err, "leveldb delete failed")
	}
	return nil
}

func (db *LevelDB) Find(prefix []byte) keyvaluedb.Iterator {
	var rng *util.Range
	if len(prefix) > 0 {
		rng = util.BytesPrefix(prefix)
	}
	it := db.db.NewIterator(rng, nil)
	defer it.Release()
	entries := make([]keyvaluedb.Entry, 0, 16)
	for it.Next() {
		entries = append(entries, keyvaluedb.Entry{Key: bytes.Clone(it.Key()), Value: bytes.Clone(it.Value())})
	}
	if err := it.Error(); err != nil {
		return keyvaluedb.NewErrIterator(errs.Wrap(err, "leveldb scan failed"))
	}
	return keyvaluedb.NewSliceIterator(entries, db.decoder)
}

func (db *LevelDB) StartTx() (keyvaluedb.DBTransaction, error) {
	tx, err := db.db.OpenTransaction()
	if err != nil {
		return nil, errs.Wrap(err, "failed to start leveldb tx")
	}
	return &levelTx{tx: tx, encoder: db.encoder, decoder: db.decoder}, nil
}

func (db *LevelDB) Close() error {
	return db.db.Close()
}

type levelTx struct {
	tx      *leveldb.Transaction
	encoder keyvaluedb.EncodeFn
	decoder keyvaluedb.DecodeFn
	closed  bool
}

func (t *levelTx) Read(key []byte, v any) (bool, error) {
	if t.closed {
		return false, keyvaluedb.ErrTxClosed
	}
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	data, err := t.tx.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(err, "leveldb tx read failed")
	}
	return true, t.decoder(data, v)
}

func (t *levelTx) Write(key []byte, v any) error {
	if t.closed {
		return keyvaluedb.ErrTxClosed
	}
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return err
	}
	b, err := t.encoder(v)
	if err != nil {
		return err
	}
	return t.tx.Put(key, b, nil)
}

func (t *levelTx) Delete(key []byte) error {
	if t.closed {
		return keyvaluedb.ErrTxClosed
	}
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	return t.tx.Delete(key, nil)
}

func (t *levelTx) Commit() error {
	if t.closed {
		return keyvaluedb.ErrTxClosed
	}
	t.closed = true
	if err := t.tx.Commit(); err != nil {
		return errs.Wrap(err, "leveldb tx commit failed")
	}
	return nil
}

func (t *levelTx) Rollback() error {
	if t.closed {
		return keyvaluedb.ErrTxClosed
	}
	t.closed = true
	t.tx.Discard()
	return nil
}
