// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkpoint restores a cell's source chain from the
// checkpoint service after the conductor reports that the chain head
// moved.
//
// [ParseDivergence] recognizes the divergence in an operation error.
// [Client] fetches the signed records the service holds for a cell,
// and [Resynchronizer] grafts them back into the conductor without
// validation. All failures are [*Error] values carrying an [ErrorKind].
package checkpoint
