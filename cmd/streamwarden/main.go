package main

import "github.com/SoarinFerret/StreamWarden/cmd/streamwarden/arg"

func main() {
	arg.Execute()
}
