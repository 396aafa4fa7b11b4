//go:build debug

package main

import (
	"os"

	bts "btreestore"
)

func dumpCmd(path string) {
	if err := bts.DumpFile(os.Stdout, path, 100, 100, bts.Int64Codec()); err != nil {
		log.Error(err)
	}
}
