package main

import (
	"fmt"

	"github.com/anvilkv/lsmkv/pkg/lsm"
)

func main() {
	tiered, err := lsm.OpenTieredStore(lsm.Options{Dir: "./data-tiered", MemTableBytes: 4096})
	if err != nil {
		panic(err)
	}
	defer tiered.Close()

	granular, err := lsm.OpenGranularStore(lsm.NewGranularOptions())
	if err != nil {
		panic(err)
	}
	defer granular.Close()

	for _, store := range []lsm.Store{tiered, granular} {
		for i := 0; i < 20; i++ {
			k := []byte(fmt.Sprintf("key-%02d", i))
			v := []byte(fmt.Sprintf("val-%02d", i))
			if err := store.Put(k, v); err != nil {
				panic(err)
			}
		}

		snap := store.GetCurrentSequenceNumber()
		if err := store.Delete([]byte("key-05")); err != nil {
			panic(err)
		}
		if err := store.Put([]byte("key-10"), []byte("val-10-updated")); err != nil {
			panic(err)
		}

		value, ok, err := store.Get([]byte("key-10"))
		if err != nil {
			panic(err)
		}
		fmt.Printf("Get(key-10) => ok=%v value=%s\n", ok, value)

		scan := store.Scan([]byte("key-03"), []byte("key-08"))
		fmt.Println("Scan(key-03, key-08):")
		for {
			kv, ok := scan.Next()
			if !ok {
				break
			}
			fmt.Printf("  %s = %s\n", kv.UserKey, kv.Value)
		}

		oldValue, ok, err := store.GetAt([]byte("key-05"), snap)
		if err != nil {
			panic(err)
		}
		fmt.Printf("GetAt(key-05, pre-delete snapshot) => ok=%v value=%s\n", ok, oldValue)
	}
}
