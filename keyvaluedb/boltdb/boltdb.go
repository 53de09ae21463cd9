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

package boltdb

import (
	"bytes"
	"time"

	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
	bolt "go.etcd.io/bbolt"
)

// 只使用單一 bucket：其他後端（leveldb/memorydb）沒有 bucket 概念，用 key 前綴區分資料類型。
const defaultBucket = "flipvault"

type BoltDB struct {
	db      *bolt.DB
	bucket  []byte
	encoder keyvaluedb.EncodeFn
	decoder keyvaluedb.DecodeFn
}

// New 開啟（或建立）dbFile。同一檔案同時只能被一個 process 開啟，等待上限 3 秒。
func New(dbFile string) (*BoltDB, error) {
	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errs.Wrap(err, "bolt open failed")
	}
	s := &BoltDB{
		db:      db,
		bucket:  []byte(defaultBucket),
		encoder: keyvaluedb.Encode,
		decoder: keyvaluedb.Decode,
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(err, "bolt create bucket failed")
	}
	return s, nil
}

func (db *BoltDB) Path() string {
	return db.db.Path()
}

func (db *BoltDB) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	var data []byte
	if err := db.db.View(func(tx *bolt.Tx) error {
		// bolt 回傳的 slice 只在 tx 內有效，必須複製
		data = bytes.Clone(tx.Bucket(db.bucket).Get(key))
		return nil
	}); err != nil {
		return false, errs.Wrap(err, "bolt db read failed")
	}
	if data == nil {
		return false, nil
	}
	if err := db.decoder(data, v); err != nil {
		return true, errs.Wrap(err, "bolt db decode failed")
	}
	return true, nil
}

func (db *BoltDB) Write(key []byte, v any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return err
	}
	b, err := db.encoder(v)
	if err != nil {
		return err
	}
	if err := db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.bucket).Put(key, b)
	}); err != nil {
		return errs.Wrap(err, "bolt db write failed")
	}
	return nil
}

func (db *BoltDB) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if err := db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.bucket).Delete(key)
	}); err != nil {
		return errs.Wrap(err, "bolt db delete failed")
	}
	return nil
}

func (db *BoltDB) Find(prefix []byte) keyvaluedb.Iterator {
	entries := make([]keyvaluedb.Entry, 0, 16)
	err := db.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(db.bucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			entries = append(entries, keyvaluedb.Entry{Key: bytes.Clone(k), Value: bytes.Clone(v)})
		}
		return nil
	})
	if err != nil {
		return keyvaluedb.NewErrIterator(errs.Wrap(err, "bolt db scan failed"))
	}
	return keyvaluedb.NewSliceIterator(entries, db.decoder)
}

func (db *BoltDB) StartTx() (keyvaluedb.DBTransaction, error) {
	tx, err := db.db.Begin(true)
	if err != nil {
		return nil, errs.Wrap(err, "failed to start bolt tx")
	}
	return &boltTx{tx: tx, bucket: tx.Bucket(db.bucket), encoder: db.encoder, decoder: db.decoder}, nil
}

func (db *BoltDB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

type boltTx struct {
	tx      *bolt.Tx
	bucket  *bolt.Bucket
	encoder keyvaluedb.EncodeFn
	decoder keyvaluedb.DecodeFn
	closed  bool
}

func (t *boltTx) Read(key []byte, v any) (bool, error) {
	if t.closed {
		return false, keyvaluedb.ErrTxClosed
	}
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	data := t.bucket.Get(key)
	if data == nil {
		return false, nil
	}
	return true, t.decoder(data, v)
}

func (t *boltTx) Write(key []byte, v any) error {
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
	return t.bucket.Put(key, b)
}

func (t *boltTx) Delete(key []byte) error {
	if t.closed {
		return keyvaluedb.ErrTxClosed
	}
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	return t.bucket.Delete(key)
}

func (t *boltTx) Commit() error {
	if t.closed {
		return keyvaluedb.ErrTxClosed
	}
	t.closed = true
	if err := t.tx.Commit(); err != nil {
		return errs.Wrap(err, "bolt tx commit failed")
	}
	return nil
}

func (t *boltTx) Rollback() error {
	if t.closed {
		return keyvaluedb.ErrTxClosed
	}
	t.closed = true
	return t.tx.Rollback()
}
