// Command wlproxy runs the intercepting Wayland protocol proxy.
package main

import "github.com/wlproxy/wlproxy/cmd/wlproxy/cmd"

func main() {
	cmd.Execute()
}
