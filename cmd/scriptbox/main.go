// Command scriptbox compiles, caches and runs scripts inside a sandbox.
package main

func main() {
	Execute()
}
