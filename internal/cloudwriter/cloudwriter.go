// Package cloudwriter streams export artifacts to cloud object
// storage.
package cloudwriter

// CloudWriter buffers writes and uploads the object on Close.
type CloudWriter interface {
	Write(data []byte) (int, error)
	Close() error
}

// CloudWriterFactory opens writers for objects in a bucket.
type CloudWriterFactory interface {
	NewWriter(bucket, objectPath string) (CloudWriter, error)
}
