// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// Build-time failures in zapdock (manifest fetch, artifact download, image
// build) are fatal and unrecoverable; the least we can do is tell the user
// what operation failed, on which resource, and what to try next. This
// package defines the error type carrying that context.
package issue
