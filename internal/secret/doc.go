// SPDX-License-Identifier: MPL-2.0

// Package secret resolves the VNC credential injected into the scanner
// container at start time. Images never carry a credential; a run either
// supplies one through a file or an environment variable, or startup is
// refused. Known-weak values are rejected outright.
package secret
