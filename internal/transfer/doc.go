// Package transfer moves file content to and from the drive.
//
// Uploads are negotiated first: a pre-hash and then a full content hash with
// a token-bound proof code let the server alias bytes it already stores
// (rapid upload). When it cannot, the file is split into fixed-size parts
// that are PUT in ascending order, the server's list of uploaded parts is
// checked against the plan, and only then is the upload completed.
//
// Downloads split the remote size into disjoint byte ranges fetched by a
// bounded worker pool and written positionally into a pre-sized file, or
// stream linearly, or append from the length already on disk.
//
// Manager is the entry point. It keeps in-flight upload sessions in the
// ledger so a later call can resume instead of starting over.
package transfer
