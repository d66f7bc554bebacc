// SPDX-License-Identifier: MPL-2.0

// zapdock assembles, builds, runs, and health-probes headless ZAP
// security-proxy container images, and automates baseline scans
// against a running instance.
package main

import cmd "zapdock/cmd/zapdock"

func main() {
	cmd.Execute()
}
