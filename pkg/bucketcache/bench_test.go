package bucketcache_test

import (
	"strconv"
	"testing"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

func BenchmarkTable_Get(b *testing.B) {
	tbl, err := bucketcache.NewTable(bucketcache.TableOptions{Capacity: 1 << 16})
	if err != nil {
		b.Fatal(err)
	}

	for k := range uint64(1 << 15) {
		tbl.Put(k, k, bucketcache.PutOptions{})
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		var k uint64
		for pb.Next() {
			tbl.Get(k&(1<<15-1), 0)
			k++
		}
	})
}

func BenchmarkTable_Put(b *testing.B) {
	tbl, err := bucketcache.NewTable(bucketcache.TableOptions{Capacity: 1 << 16})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()

	var k uint64
	for b.Loop() {
		tbl.Put(k&(1<<16-1), k, bucketcache.PutOptions{})
		k++
	}
}

func BenchmarkKeyed_Get_String(b *testing.B) {
	store, err := bucketcache.NewStore()
	if err != nil {
		b.Fatal(err)
	}

	keys := bucketcache.Keys[string](store, "bench")

	names := make([]string, 4096)
	for i := range names {
		names[i] = "user:" + strconv.Itoa(i)
		keys.Put(names[i], i, bucketcache.PutOptions{})
	}

	b.ReportAllocs()

	i := 0
	for b.Loop() {
		keys.Lookup(names[i&4095])
		i++
	}
}

func BenchmarkTable_Sweep(b *testing.B) {
	tbl, err := bucketcache.NewTable(bucketcache.TableOptions{Capacity: 1 << 16})
	if err != nil {
		b.Fatal(err)
	}

	for k := range uint64(1 << 15) {
		tbl.Put(k, k, bucketcache.PutOptions{})
	}

	for b.Loop() {
		tbl.Sweep()
	}
}
