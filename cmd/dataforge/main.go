// Package main is the entry point for dataforge.
package main

func main() {
	Execute()
}
