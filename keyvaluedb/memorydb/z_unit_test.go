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

package memorydb

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zintix-labs/flipvault/keyvaluedb"
)

type record struct {
	Name  string
	Value uint64
}

func TestMemoryDB_ReadWriteDelete(t *testing.T) {
	db := New()
	empty, err := keyvaluedb.IsEmpty(db)
	require.NoError(t, err)
	require.True(t, empty)

	require.NoError(t, db.Write([]byte("r/1"), &record{Name: "a", Value: 1}))
	var r record
	found, err := db.Read([]byte("r/1"), &r)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, record{Name: "a", Value: 1}, r)

	require.NoError(t, db.Delete([]byte("r/1")))
	found, err = db.Read([]byte("r/1"), &r)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryDB_InvalidArgs(t *testing.T) {
	db := New()
	require.ErrorIs(t, db.Write(nil, "x"), keyvaluedb.ErrInvalidKey)
	require.ErrorIs(t, db.Write([]byte("k"), nil), keyvaluedb.ErrInvalidValue)
	var p *record
	_, err := db.Read([]byte("k"), p)
	require.ErrorIs(t, err, keyvaluedb.ErrInvalidValue)
}

func TestMemoryDB_Find(t *testing.T) {
	db := New()
	require.NoError(t, db.Write([]byte("w/2"), "two"))
	require.NoError(t, db.Write([]byte("w/1"), "one"))
	require.NoError(t, db.Write([]byte("x/1"), "other"))

	it := db.Find([]byte("w/"))
	defer it.Close()
	var got []string
	for ; it.Valid(); it.Next() {
		var s string
		require.NoError(t, it.Value(&s))
		got = append(got, string(it.Key())+"="+s)
	}
	require.Equal(t, []string{"w/1=one", "w/2=two"}, got)
}

func TestMemoryTx_CommitAndRollback(t *testing.T) {
	db := New()
	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("a"), "1"))
	var s string
	found, err := tx.Read([]byte("a"), &s)
	require.NoError(t, err)
	require.True(t, found)
	// 尚未 commit，外部看不到
	found, err = db.Read([]byte("a"), &s)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, tx.Commit())
	found, err = db.Read([]byte("a"), &s)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", s)

	tx, err = db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Delete([]byte("a")))
	require.NoError(t, tx.Write([]byte("b"), "2"))
	require.NoError(t, tx.Rollback())
	found, err = db.Read([]byte("a"), &s)
	require.NoError(t, err)
	require.True(t, found)
	found, err = db.Read([]byte("b"), &s)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryTx_UseAfterClose(t *testing.T) {
	db := New()
	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	var s string
	_, err = tx.Read([]byte("a"), &s)
	require.ErrorIs(t, err, keyvaluedb.ErrTxClosed)
	require.ErrorIs(t, tx.Write([]byte("a"), "1"), keyvaluedb.ErrTxClosed)
	require.ErrorIs(t, tx.Delete([]byte("a")), keyvaluedb.ErrTxClosed)
	require.ErrorIs(t, tx.Commit(), keyvaluedb.ErrTxClosed)
	require.ErrorIs(t, tx.Rollback(), keyvaluedb.ErrTxClosed)
}
