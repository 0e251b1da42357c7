// Command kmem boots the kernel memory manager on a simulated x86_64 machine.
package main

import "github.com/sarchlab/kmem/kmem/cmd"

func main() {
	cmd.Execute()
}
