package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

// ChecksumReader passes reads through and hashes every byte read.
type ChecksumReader struct {
	reader   io.Reader
	checksum hash.Hash
	size     int64
}

func NewMD5Reader(reader io.Reader) *ChecksumReader {
	return &ChecksumReader{
		reader:   reader,
		checksum: md5.New(),
	}
}

func (r *ChecksumReader) Read(buf []byte) (int, error) {
	n, err := r.reader.Read(buf)
	if n > 0 {
		// hash.Hash never returns an error
		r.checksum.Write(buf[:n])
		r.size += int64(n)
	}
	return n, err
}

// Checksum returns the hex MD5 of the bytes read so far.
func (r *ChecksumReader) Checksum() string {
	return hex.EncodeToString(r.checksum.Sum(nil))
}

// Size returns the number of bytes read so far.
func (r *ChecksumReader) Size() int64 {
	return r.size
}

// ChecksumOf drains reader and returns its hex MD5.
func ChecksumOf(reader io.Reader) (string, error) {
	r := NewMD5Reader(reader)
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return r.Checksum(), nil
}
