// SPDX-License-Identifier: MPL-2.0

// Package overlay carries the static configuration files copied into the
// scanner image: launcher scripts, the X session init script, and scan policy
// files. Each file knows its in-image destination, mode, and whether its
// ownership fix-up must happen inside the recipe's privileged block.
//
// The defaults are embedded in the binary so an assembly run has no loose
// file dependencies. Shell assets are syntax-checked before a recipe may
// reference them, and extra scan policies can be pulled from a git repository
// at staging time.
package overlay
