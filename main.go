package main

import "github.com/dohdata/prismzonal/cmd"

func main() {
	cmd.Execute()
}
