package storage

import (
	"bytes"
	"fmt"
	"testing"
)

// dbImpls returns fresh instances of every DB implementation under test.
func dbImpls(t *testing.T) map[string]DB {
	t.Helper()
	badgerDB, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { badgerDB.Close() })
	return map[string]DB{
		"memory": NewMemory(),
		"badger": badgerDB,
	}
}

func TestDB_PutGetDelete(t *testing.T) {
	for name, db := range dbImpls(t) {
		t.Run(name, func(t *testing.T) {
			key, val := []byte("k1"), []byte("v1")

			if _, err := db.Get(key); err == nil {
				t.Error("expected error for missing key")
			}

			if err := db.Put(key, val); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := db.Get(key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, val) {
				t.Errorf("Get = %q, want %q", got, val)
			}

			has, err := db.Has(key)
			if err != nil || !has {
				t.Errorf("Has = %v, %v, want true, nil", has, err)
			}

			if err := db.Delete(key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			has, _ = db.Has(key)
			if has {
				t.Error("key should be gone after Delete")
			}
		})
	}
}

func TestDB_ForEach_OrderedWithinPrefix(t *testing.T) {
	for name, db := range dbImpls(t) {
		t.Run(name, func(t *testing.T) {
			// Insert out of order; expect lexicographic iteration.
			for _, k := range []string{"p/3", "p/1", "p/2", "q/1"} {
				if err := db.Put([]byte(k), []byte(k)); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}

			var got []string
			err := db.ForEach([]byte("p/"), func(key, value []byte) error {
				got = append(got, string(key))
				return nil
			})
			if err != nil {
				t.Fatalf("ForEach: %v", err)
			}

			want := []string{"p/1", "p/2", "p/3"}
			if len(got) != len(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("got %v, want %v", got, want)
					break
				}
			}
		})
	}
}

func TestDB_ForEachFrom_SeeksToStart(t *testing.T) {
	for name, db := range dbImpls(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				k := fmt.Sprintf("p/%d", i)
				if err := db.Put([]byte(k), []byte{byte(i)}); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}

			var got []string
			err := db.ForEachFrom([]byte("p/"), []byte("p/5"), func(key, value []byte) error {
				got = append(got, string(key))
				return nil
			})
			if err != nil {
				t.Fatalf("ForEachFrom: %v", err)
			}
			if len(got) != 5 || got[0] != "p/5" || got[4] != "p/9" {
				t.Errorf("got %v, want p/5..p/9", got)
			}
		})
	}
}

func TestDB_ForEach_StopSentinel(t *testing.T) {
	for name, db := range dbImpls(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				db.Put([]byte(fmt.Sprintf("p/%d", i)), nil)
			}

			count := 0
			err := db.ForEach([]byte("p/"), func(key, value []byte) error {
				count++
				if count == 2 {
					return Stop
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Stop must not surface as an error, got %v", err)
			}
			if count != 2 {
				t.Errorf("iterated %d entries, want 2", count)
			}
		})
	}
}

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	a := NewPrefixDB(inner, []byte("A/"))
	b := NewPrefixDB(inner, []byte("B/"))

	if err := a.Put([]byte("k"), []byte("from-a")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put([]byte("k"), []byte("from-b")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := a.Get([]byte("k"))
	if err != nil || string(got) != "from-a" {
		t.Errorf("a.Get = %q, %v, want from-a", got, err)
	}
	got, err = b.Get([]byte("k"))
	if err != nil || string(got) != "from-b" {
		t.Errorf("b.Get = %q, %v, want from-b", got, err)
	}

	// Iteration sees only the namespace's logical keys.
	var keys []string
	a.ForEach(nil, func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if len(keys) != 1 || keys[0] != "k" {
		t.Errorf("a iteration = %v, want [k]", keys)
	}
}
