// SPDX-License-Identifier: MPL-2.0

// Package recipe turns an assembly spec into a container image: it generates
// the Dockerfile text, stages a build context from the unpacked scanner and
// bridge distributions plus the configuration overlay, and builds the image
// through a container.Engine with content-hash caching.
//
// The generated recipe keeps privilege narrow: the image runs as the
// unprivileged zap account, and the single place that needs root (the
// ownership fix-up after COPY) is emitted as one scoped block that always
// de-escalates. Recipes never carry literal credentials; the VNC password
// arrives at container start through an injected secret file.
package recipe
