package main

import "github.com/goplus/libstage/cmd/libstage/internal"

func main() {
	internal.Execute()
}
