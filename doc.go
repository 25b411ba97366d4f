// Package dagdelta computes minimal deltas between versions of a file
// using a content-addressed Merkle DAG.
//
// A file is split into content-defined chunks
// (see the chunker subpackage).
// Each chunk is stored as a raw block,
// addressed by its CID:
// the sha2-256 hash of its bytes together with a codec tag.
// Chunks are grouped into tree nodes,
// and tree nodes into higher tree nodes,
// until a single root node represents the whole file
// (see the filetree subpackage).
//
// Grouping does not use a fixed fan-out.
// Instead a block "ends a group" when the last byte of its digest is zero.
// That makes the shape of the tree a function of its content:
// a small edit to a file changes only the chunks it touches
// and the nodes on the path from those chunks to the root.
// Every other node keeps its CID.
//
// That property is what makes deltas small.
// The delta from one file to another is simply
// the set of blocks in the new file's DAG that are not in the old one's.
// It is shipped as an archive
// (see the archive subpackage)
// containing the new root and those blocks.
// Someone holding the old file can rebuild its DAG,
// then walk the new DAG from its root,
// taking each block from either the archive or the old file,
// to reproduce the new file byte for byte.
//
// This package defines the pieces shared by all the others:
// CID helpers,
// the Block type,
// the error taxonomy,
// and the Fetcher and Store interfaces for out-of-band block retrieval.
package dagdelta
