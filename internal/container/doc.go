// SPDX-License-Identifier: MPL-2.0

// Package container provides an abstraction layer for container runtimes.
//
// Three engines are available: Docker and Podman via their CLIs (embedding a
// shared BaseCLIEngine), and an API engine speaking the Docker Engine API
// over the socket. Engine selection falls back along a preference chain so
// that image assembly works on hosts with any one of the runtimes present.
package container
