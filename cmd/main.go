package main

import (
	cmd "github.com/boozook/comic-repack/cmd/comicrepack"
)

func main() {
	cmd.Execute()
}
