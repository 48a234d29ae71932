package main

// Set by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	Execute()
}
