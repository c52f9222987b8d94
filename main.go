package main

import "github.com/frahmantamala/ngo-accountability/cmd"

func main() {
	cmd.Execute()
}
