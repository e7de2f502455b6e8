// Command wardenctl boots, inspects, and monitors a warden machine from
// the command line.
package main

func main() {
	Execute()
}
