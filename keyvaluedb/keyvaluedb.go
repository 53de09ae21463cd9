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

// Package keyvaluedb 定義 vault / bank 共用的鍵值儲存抽象。
//
// 實作：
//   - memorydb：測試與模擬器使用，無持久化。
//   - boltdb：單檔持久化（go.etcd.io/bbolt），預設後端。
//   - leveldb：LSM 持久化（syndtr/goleveldb）。
//
// 值一律以 cbor 編碼（fxamacker/cbor），呼叫端只處理 Go struct。
package keyvaluedb

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zintix-labs/flipvault/errs"
)

var (
	ErrInvalidKey   = errs.NewFatal("invalid key: nil or empty")
	ErrInvalidValue = errs.NewFatal("invalid value: must be a non-nil value")
	ErrTxClosed     = errs.NewFatal("tx closed")
	ErrDBNil        = errs.NewFatal("db is nil")
)

type (
	EncodeFn func(v any) ([]byte, error)
	DecodeFn func(data []byte, v any) error
)

// Encode / Decode 是所有後端共用的預設編碼。
var (
	Encode EncodeFn = cbor.Marshal
	Decode DecodeFn = cbor.Unmarshal
)

// Reader 是讀取能力。found=false 且 err=nil 代表 key 不存在。
type Reader interface {
	Read(key []byte, v any) (found bool, err error)
}

// Writer 是寫入能力。
type Writer interface {
	Write(key []byte, v any) error
	Delete(key []byte) error
}

// ReadWriter 是 Transaction 與 DB 共同的最小介面；bank / vault 只依賴它。
type ReadWriter interface {
	Reader
	Writer
}

// DBTransaction 是單一寫入交易：Commit 之前的寫入對外不可見，Rollback 後全部丟棄。
// Commit / Rollback 之後任何操作都回傳 ErrTxClosed。
type DBTransaction interface {
	ReadWriter
	Commit() error
	Rollback() error
}

// Iterator 依 key 字典序走訪同一前綴下的資料（走訪的是建立當下的快照）。
// 建立快照失敗時 Valid 為 false，錯誤由 Value 與 Close 回傳；呼叫端走訪完要檢查 Close。
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value(v any) error
	Close() error
}

type KeyValueDB interface {
	ReadWriter
	// Find 回傳以 prefix 為前綴的所有 key 的迭代器。
	Find(prefix []byte) Iterator
	StartTx() (DBTransaction, error)
	Close() error
}

func CheckKey(key []byte) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	return nil
}

func CheckKeyAndValue(key []byte, v any) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	if v == nil {
		return ErrInvalidValue
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return ErrInvalidValue
		}
	}
	return nil
}

// IsEmpty 回傳 db 是否沒有任何資料。
func IsEmpty(db KeyValueDB) (bool, error) {
	if db == nil {
		return true, ErrDBNil
	}
	it := db.Find(nil)
	empty := !it.Valid()
	if err := it.Close(); err != nil {
		return false, err
	}
	return empty, nil
}

// Entry 是快照迭代器的一筆資料。
type Entry struct {
	Key   []byte
	Value []byte
}

// SliceIterator 以預先收集好的快照實作 Iterator；各後端共用。
type SliceIterator struct {
	entries []Entry
	pos     int
	decode  DecodeFn
	err     error
}

func NewSliceIterator(entries []Entry, decode DecodeFn) *SliceIterator {
	if decode == nil {
		decode = Decode
	}
	return &SliceIterator{entries: entries, decode: decode}
}

// NewErrIterator 回傳一個空的迭代器，Value 與 Close 都回傳 err。
func NewErrIterator(err error) *SliceIterator {
	return &SliceIterator{decode: Decode, err: err}
}

func (it *SliceIterator) Valid() bool { return it.pos < len(it.entries) }

func (it *SliceIterator) Next() {
	if it.pos < len(it.entries) {
		it.pos++
	}
}

func (it *SliceIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.entries[it.pos].Key
}

func (it *SliceIterator) Value(v any) error {
	if it.err != nil {
		return it.err
	}
	if !it.Valid() {
		return errs.NewWarn("iterator exhausted")
	}
	return it.decode(it.entries[it.pos].Value, v)
}

func (it *SliceIterator) Close() error {
	it.entries = nil
	return it.err
}
