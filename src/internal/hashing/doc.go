// Package hashing computes MD5 checksums of streams while they are consumed.
//
// It is used to fingerprint the configuration file and the list files it
// references, so the control API can report whether the file state differs
// from the state the running service applied.
//
//	r := hashing.NewMD5Reader(file)
//	if _, err := io.Copy(io.Discard, r); err != nil {
//		return err
//	}
//	sum := r.Checksum()
package hashing
