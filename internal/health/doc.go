// SPDX-License-Identifier: MPL-2.0

// Package health drives the container liveness model: a periodic probe with
// a retry budget, moving through starting, healthy, unhealthy, and failed
// states. The probe itself is pluggable; the CLI probe shells the automation
// client's status command through a container engine, the HTTP probe asks the
// scanner's JSON API directly.
package health
