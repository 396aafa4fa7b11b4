//go:build !debug

package main

import "fmt"

func dumpCmd(path string) {
	fmt.Println("dump is only available in a debug build: rebuild with -tags debug")
}
